package conf

import (
	"encoding/json"
	"os"
)

type NamingConfig struct {
	ServiceBindAddr      string `json:"serviceBindAddr"`      // addr we expose for the client service, in "0.0.0.0:PORT" syntax
	RegistrationBindAddr string `json:"registrationBindAddr"` // addr we expose for storage registration
}

func (cfg *NamingConfig) ReadConfig(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	d := json.NewDecoder(f)
	return d.Decode(cfg)
}

func (cfg *NamingConfig) Write(file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(cfg)
}

type StorageConfig struct {
	Hostname        string `json:"hostname"`        // externally-routable hostname carried in our self-handles
	NamingAddr      string `json:"namingAddr"`      // addr to connect to for the naming server's registration interface
	StorageBindAddr string `json:"storageBindAddr"` // addr we expose for byte I/O, empty for an anonymous port
	CommandBindAddr string `json:"commandBindAddr"` // addr we expose for commands, empty for an anonymous port
	Root            string `json:"root"`            // path to the local directory we serve
}

func (cfg *StorageConfig) ReadConfig(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	d := json.NewDecoder(f)
	return d.Decode(cfg)
}

func (cfg *StorageConfig) Write(file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(cfg)
}
