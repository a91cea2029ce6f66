package drpc

import (
	"fmt"

	"github.com/mhodder/driftfs/driftfs"
)

// Hand-written service/client pairs for the naming server's two remote
// interfaces. One Request/Response struct pair per method; the service side
// exposes a dispatch table for a skeleton, the client side implements the
// driftfs interface over call().

type NameServiceService struct {
	impl driftfs.NameService
}

func NewNameServiceService(impl driftfs.NameService) *NameServiceService {
	return &NameServiceService{impl}
}

type NameServiceIsDirectoryRequest struct {
	P driftfs.Path
}

type NameServiceIsDirectoryResponse struct {
	IsDir bool
}

type NameServiceListRequest struct {
	Dir driftfs.Path
}

type NameServiceListResponse struct {
	Names []string
}

type NameServiceCreateFileRequest struct {
	P driftfs.Path
}

type NameServiceCreateFileResponse struct {
	Created bool
}

type NameServiceCreateDirectoryRequest struct {
	P driftfs.Path
}

type NameServiceCreateDirectoryResponse struct {
	Created bool
}

type NameServiceDeleteRequest struct {
	P driftfs.Path
}

type NameServiceDeleteResponse struct {
	Deleted bool
}

type NameServiceGetStorageRequest struct {
	P driftfs.Path
}

type NameServiceGetStorageResponse struct {
	H driftfs.Handle
}

// Dispatch builds the method table for a NameService skeleton.
func (s *NameServiceService) Dispatch() DispatchTable {
	return DispatchTable{
		"IsDirectory": func(body []byte) ([]byte, error) {
			request := NameServiceIsDirectoryRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			isDir, err := s.impl.IsDirectory(request.P)
			if err != nil {
				return nil, err
			}
			return encodeBody(&NameServiceIsDirectoryResponse{isDir})
		},
		"List": func(body []byte) ([]byte, error) {
			request := NameServiceListRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			names, err := s.impl.List(request.Dir)
			if err != nil {
				return nil, err
			}
			return encodeBody(&NameServiceListResponse{names})
		},
		"CreateFile": func(body []byte) ([]byte, error) {
			request := NameServiceCreateFileRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			created, err := s.impl.CreateFile(request.P)
			if err != nil {
				return nil, err
			}
			return encodeBody(&NameServiceCreateFileResponse{created})
		},
		"CreateDirectory": func(body []byte) ([]byte, error) {
			request := NameServiceCreateDirectoryRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			created, err := s.impl.CreateDirectory(request.P)
			if err != nil {
				return nil, err
			}
			return encodeBody(&NameServiceCreateDirectoryResponse{created})
		},
		"Delete": func(body []byte) ([]byte, error) {
			request := NameServiceDeleteRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			deleted, err := s.impl.Delete(request.P)
			if err != nil {
				return nil, err
			}
			return encodeBody(&NameServiceDeleteResponse{deleted})
		},
		"GetStorage": func(body []byte) ([]byte, error) {
			request := NameServiceGetStorageRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			h, err := s.impl.GetStorage(request.P)
			if err != nil {
				return nil, err
			}
			return encodeBody(&NameServiceGetStorageResponse{h})
		},
	}
}

// NewNameServiceSkeleton wires a NameService implementation to a skeleton at
// addr.
func NewNameServiceSkeleton(impl driftfs.NameService, addr string) (*Skeleton, error) {
	if impl == nil {
		return nil, fmt.Errorf("nil NameService implementation: %w", driftfs.E_INVAL)
	}
	return NewSkeleton(driftfs.IfaceNameService, NewNameServiceService(impl).Dispatch(), addr)
}

type NameServiceClient struct {
	h driftfs.Handle
}

// NewNameServiceClient builds the client-side stub for a NameService handle.
func NewNameServiceClient(h driftfs.Handle) (*NameServiceClient, error) {
	if err := checkHandle(h, driftfs.IfaceNameService); err != nil {
		return nil, err
	}
	return &NameServiceClient{h}, nil
}

func (c *NameServiceClient) Handle() driftfs.Handle { return c.h }

func (c *NameServiceClient) Equals(o *NameServiceClient) bool {
	return o != nil && c.h == o.h
}

func (c *NameServiceClient) Hash() uint64 { return c.h.Hash() }

func (c *NameServiceClient) String() string { return c.h.String() }

func (c *NameServiceClient) IsDirectory(p driftfs.Path) (bool, error) {
	response := NameServiceIsDirectoryResponse{}
	err := call(c.h, "IsDirectory", &NameServiceIsDirectoryRequest{p}, &response)
	return response.IsDir, err
}

func (c *NameServiceClient) List(dir driftfs.Path) ([]string, error) {
	response := NameServiceListResponse{}
	err := call(c.h, "List", &NameServiceListRequest{dir}, &response)
	return response.Names, err
}

func (c *NameServiceClient) CreateFile(p driftfs.Path) (bool, error) {
	response := NameServiceCreateFileResponse{}
	err := call(c.h, "CreateFile", &NameServiceCreateFileRequest{p}, &response)
	return response.Created, err
}

func (c *NameServiceClient) CreateDirectory(p driftfs.Path) (bool, error) {
	response := NameServiceCreateDirectoryResponse{}
	err := call(c.h, "CreateDirectory", &NameServiceCreateDirectoryRequest{p}, &response)
	return response.Created, err
}

func (c *NameServiceClient) Delete(p driftfs.Path) (bool, error) {
	response := NameServiceDeleteResponse{}
	err := call(c.h, "Delete", &NameServiceDeleteRequest{p}, &response)
	return response.Deleted, err
}

func (c *NameServiceClient) GetStorage(p driftfs.Path) (driftfs.Handle, error) {
	response := NameServiceGetStorageResponse{}
	err := call(c.h, "GetStorage", &NameServiceGetStorageRequest{p}, &response)
	return response.H, err
}

type RegistrationService struct {
	impl driftfs.Registration
}

func NewRegistrationService(impl driftfs.Registration) *RegistrationService {
	return &RegistrationService{impl}
}

type RegistrationRegisterRequest struct {
	Storage driftfs.Handle
	Command driftfs.Handle
	Paths   []driftfs.Path
}

type RegistrationRegisterResponse struct {
	ToDelete []driftfs.Path
}

func (s *RegistrationService) Dispatch() DispatchTable {
	return DispatchTable{
		"Register": func(body []byte) ([]byte, error) {
			request := RegistrationRegisterRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			toDelete, err := s.impl.Register(request.Storage, request.Command, request.Paths)
			if err != nil {
				return nil, err
			}
			return encodeBody(&RegistrationRegisterResponse{toDelete})
		},
	}
}

// NewRegistrationSkeleton wires a Registration implementation to a skeleton
// at addr.
func NewRegistrationSkeleton(impl driftfs.Registration, addr string) (*Skeleton, error) {
	if impl == nil {
		return nil, fmt.Errorf("nil Registration implementation: %w", driftfs.E_INVAL)
	}
	return NewSkeleton(driftfs.IfaceRegistration, NewRegistrationService(impl).Dispatch(), addr)
}

type RegistrationClient struct {
	h driftfs.Handle
}

func NewRegistrationClient(h driftfs.Handle) (*RegistrationClient, error) {
	if err := checkHandle(h, driftfs.IfaceRegistration); err != nil {
		return nil, err
	}
	return &RegistrationClient{h}, nil
}

func (c *RegistrationClient) Handle() driftfs.Handle { return c.h }

func (c *RegistrationClient) Equals(o *RegistrationClient) bool {
	return o != nil && c.h == o.h
}

func (c *RegistrationClient) Hash() uint64 { return c.h.Hash() }

func (c *RegistrationClient) String() string { return c.h.String() }

func (c *RegistrationClient) Register(storage driftfs.Handle, command driftfs.Handle, paths []driftfs.Path) ([]driftfs.Path, error) {
	response := RegistrationRegisterResponse{}
	err := call(c.h, "Register", &RegistrationRegisterRequest{storage, command, paths}, &response)
	return response.ToDelete, err
}
