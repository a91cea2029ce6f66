package drpc

import (
	"fmt"

	"github.com/mhodder/driftfs/driftfs"
)

// Service/client pairs for the two remote interfaces every storage server
// exposes: bulk byte I/O and mutation commands.

type StorageService struct {
	impl driftfs.Storage
}

func NewStorageService(impl driftfs.Storage) *StorageService {
	return &StorageService{impl}
}

type StorageSizeRequest struct {
	P driftfs.Path
}

type StorageSizeResponse struct {
	Size int64
}

type StorageReadRequest struct {
	P      driftfs.Path
	Offset int64
	Length int
}

type StorageReadResponse struct {
	Data []byte
}

type StorageWriteRequest struct {
	P      driftfs.Path
	Offset int64
	Data   []byte
}

type StorageWriteResponse struct {
}

func (s *StorageService) Dispatch() DispatchTable {
	return DispatchTable{
		"Size": func(body []byte) ([]byte, error) {
			request := StorageSizeRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			size, err := s.impl.Size(request.P)
			if err != nil {
				return nil, err
			}
			return encodeBody(&StorageSizeResponse{size})
		},
		"Read": func(body []byte) ([]byte, error) {
			request := StorageReadRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			data, err := s.impl.Read(request.P, request.Offset, request.Length)
			if err != nil {
				return nil, err
			}
			return encodeBody(&StorageReadResponse{data})
		},
		"Write": func(body []byte) ([]byte, error) {
			request := StorageWriteRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			if err := s.impl.Write(request.P, request.Offset, request.Data); err != nil {
				return nil, err
			}
			return encodeBody(&StorageWriteResponse{})
		},
	}
}

// NewStorageSkeleton wires a Storage implementation to a skeleton at addr.
func NewStorageSkeleton(impl driftfs.Storage, addr string) (*Skeleton, error) {
	if impl == nil {
		return nil, fmt.Errorf("nil Storage implementation: %w", driftfs.E_INVAL)
	}
	return NewSkeleton(driftfs.IfaceStorage, NewStorageService(impl).Dispatch(), addr)
}

type StorageClient struct {
	h driftfs.Handle
}

func NewStorageClient(h driftfs.Handle) (*StorageClient, error) {
	if err := checkHandle(h, driftfs.IfaceStorage); err != nil {
		return nil, err
	}
	return &StorageClient{h}, nil
}

func (c *StorageClient) Handle() driftfs.Handle { return c.h }

func (c *StorageClient) Equals(o *StorageClient) bool {
	return o != nil && c.h == o.h
}

func (c *StorageClient) Hash() uint64 { return c.h.Hash() }

func (c *StorageClient) String() string { return c.h.String() }

func (c *StorageClient) Size(p driftfs.Path) (int64, error) {
	response := StorageSizeResponse{}
	err := call(c.h, "Size", &StorageSizeRequest{p}, &response)
	return response.Size, err
}

func (c *StorageClient) Read(p driftfs.Path, offset int64, length int) ([]byte, error) {
	response := StorageReadResponse{}
	err := call(c.h, "Read", &StorageReadRequest{p, offset, length}, &response)
	return response.Data, err
}

func (c *StorageClient) Write(p driftfs.Path, offset int64, data []byte) error {
	response := StorageWriteResponse{}
	return call(c.h, "Write", &StorageWriteRequest{p, offset, data}, &response)
}

type CommandService struct {
	impl driftfs.Command
}

func NewCommandService(impl driftfs.Command) *CommandService {
	return &CommandService{impl}
}

type CommandCreateRequest struct {
	P driftfs.Path
}

type CommandCreateResponse struct {
	Created bool
}

type CommandDeleteRequest struct {
	P driftfs.Path
}

type CommandDeleteResponse struct {
	Deleted bool
}

func (s *CommandService) Dispatch() DispatchTable {
	return DispatchTable{
		"Create": func(body []byte) ([]byte, error) {
			request := CommandCreateRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			created, err := s.impl.Create(request.P)
			if err != nil {
				return nil, err
			}
			return encodeBody(&CommandCreateResponse{created})
		},
		"Delete": func(body []byte) ([]byte, error) {
			request := CommandDeleteRequest{}
			if err := decodeBody(body, &request); err != nil {
				return nil, err
			}
			deleted, err := s.impl.Delete(request.P)
			if err != nil {
				return nil, err
			}
			return encodeBody(&CommandDeleteResponse{deleted})
		},
	}
}

// NewCommandSkeleton wires a Command implementation to a skeleton at addr.
func NewCommandSkeleton(impl driftfs.Command, addr string) (*Skeleton, error) {
	if impl == nil {
		return nil, fmt.Errorf("nil Command implementation: %w", driftfs.E_INVAL)
	}
	return NewSkeleton(driftfs.IfaceCommand, NewCommandService(impl).Dispatch(), addr)
}

type CommandClient struct {
	h driftfs.Handle
}

func NewCommandClient(h driftfs.Handle) (*CommandClient, error) {
	if err := checkHandle(h, driftfs.IfaceCommand); err != nil {
		return nil, err
	}
	return &CommandClient{h}, nil
}

func (c *CommandClient) Handle() driftfs.Handle { return c.h }

func (c *CommandClient) Equals(o *CommandClient) bool {
	return o != nil && c.h == o.h
}

func (c *CommandClient) Hash() uint64 { return c.h.Hash() }

func (c *CommandClient) String() string { return c.h.String() }

func (c *CommandClient) Create(p driftfs.Path) (bool, error) {
	response := CommandCreateResponse{}
	err := call(c.h, "Create", &CommandCreateRequest{p}, &response)
	return response.Created, err
}

func (c *CommandClient) Delete(p driftfs.Path) (bool, error) {
	response := CommandDeleteResponse{}
	err := call(c.h, "Delete", &CommandDeleteRequest{p}, &response)
	return response.Deleted, err
}
