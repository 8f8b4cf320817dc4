package main

import (
	"fmt"
	"os"

	pongoutils "github.com/JoshuaDoes/pongo-usbdl"
)

func (o *options) loadConfig() (*pongoutils.Config, error) {
	cfg := &pongoutils.Config{
		BulkTimeout: o.timeout,
	}
	if o.hasCmdline {
		cmdline := o.cmdline
		cfg.Cmdline = &cmdline
	}

	var err error
	if cfg.Kernel, err = readPayload("kernel", o.kernel); err != nil {
		return nil, err
	}
	if cfg.DeviceTree, err = readPayload("dtbpack", o.dtbpack); err != nil {
		return nil, err
	}
	if o.initrd != "" {
		if cfg.Initrd, err = readPayload("initrd", o.initrd); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func readPayload(name, file string) (*pongoutils.Payload, error) {
	if err := isFile(file); err != nil {
		return nil, err
	}
	bytes, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("error reading %s image '%s': %v", name, file, err)
	}
	if len(bytes) == 0 {
		return nil, fmt.Errorf("%s image '%s' is empty", name, file)
	}
	payload := pongoutils.NewPayload(name, bytes)
	log.Debugf("Read %s from '%s'", payload, file)
	return payload, nil
}

func isFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file '%s' does not exist", path)
		}
		return fmt.Errorf("error opening file '%s': %v", path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("'%s' is a directory", path)
	}
	return nil
}
