// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	toml "github.com/pelletier/go-toml"
)

// ConfigCommand represents a command for printing a config.
type ConfigCommand struct {
	*cubestore.CmdIO
	Config *config.Config
}

// NewConfigCommand returns a new instance of ConfigCommand holding the
// default configuration.
func NewConfigCommand(stdin io.Reader, stdout, stderr io.Writer) *ConfigCommand {
	return &ConfigCommand{
		CmdIO:  cubestore.NewCmdIO(stdin, stdout, stderr),
		Config: config.NewConfig(),
	}
}

// Run prints out the config as TOML.
func (cmd *ConfigCommand) Run(_ context.Context) error {
	if cmd.Config == nil {
		return errors.NewErrNullParameter("config")
	}
	buf, err := toml.Marshal(*cmd.Config)
	if err != nil {
		return errors.Wrap(err, "marshalling config")
	}
	fmt.Fprintln(cmd.Stdout, string(buf))
	return nil
}
