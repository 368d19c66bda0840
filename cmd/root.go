// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package cmd holds the cobra command tree of the cubestore binary.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/logger"
	"github.com/featurebasedb/cubestore/tracing"
	cubetracing "github.com/featurebasedb/cubestore/tracing/opentracing"
	"github.com/opentracing/opentracing-go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix prefixes the environment variables read by setAllConfig.
const envPrefix = "CUBESTORE"

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "cubestore",
		Short: "cubestore stores data cubes as fragment tables on relational servers.",
		Long: `cubestore stores data cubes as fragment tables on relational servers.

This binary imports NetCDF variables into fragments, fills fragments
with random data for benchmarks, inspects stored cubes and converts
time coordinates of catalogued dimensions.
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			err := setAllConfig(v, cmd.Flags())
			if err != nil {
				return err
			}

			// return "dry run" error if "dry-run" flag is set
			ret, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return fmt.Errorf("problem getting dry-run flag: %v", err)
			}
			if ret {
				if cmd.Parent() != nil {
					return fmt.Errorf("dry run")
				}
			}

			return nil
		},
		SilenceUsage: true,
	}
	rc.PersistentFlags().Bool("dry-run", false, "stop before executing")
	_ = rc.PersistentFlags().MarkHidden("dry-run")
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")

	rc.AddCommand(newConfigCommand(stdin, stdout, stderr))
	rc.AddCommand(newImportCommand(stdin, stdout, stderr))
	rc.AddCommand(newRandomCommand(stdin, stdout, stderr))
	rc.AddCommand(newInspectCommand(stdin, stdout, stderr))
	rc.AddCommand(newCalendarCommand(stdin, stdout, stderr))

	rc.SetOutput(stderr)
	return rc
}

// configFlags binds every option of c to a flag named after its TOML key.
func configFlags(flags *pflag.FlagSet, c *config.Config) {
	def := config.NewConfig()
	flags.StringVarP(&c.DataDir, "data-dir", "d", def.DataDir, "Directory holding the catalog.")
	flags.StringVar(&c.LogPath, "log-path", def.LogPath, "Log path. Logs go to stderr when empty.")
	flags.BoolVar(&c.Verbose, "verbose", def.Verbose, "Enable verbose logging.")

	flags.StringVar(&c.Backend.Driver, "backend.driver", def.Backend.Driver, "Backend driver: mysql, postgres, sqlite or inmem.")
	flags.StringVar(&c.Backend.Host, "backend.host", def.Backend.Host, "Host of the IO server.")
	flags.IntVar(&c.Backend.Port, "backend.port", def.Backend.Port, "Port of the IO server.")
	flags.StringVar(&c.Backend.User, "backend.user", def.Backend.User, "User name on the IO server.")
	flags.StringVar(&c.Backend.Password, "backend.password", def.Backend.Password, "Password on the IO server.")
	flags.DurationVar((*time.Duration)(&c.Backend.ConnectTimeout), "backend.connect-timeout", time.Duration(def.Backend.ConnectTimeout), "Connection timeout.")

	flags.IntVar(&c.Storage.MaxStatementSize, "storage.max-statement-size", def.Storage.MaxStatementSize, "Largest statement sent to a server, in bytes.")
	flags.IntVar(&c.Storage.InsertBatchBytes, "storage.insert-batch-bytes", def.Storage.InsertBatchBytes, "Largest insert statement payload, in bytes.")
	flags.IntVar(&c.Storage.InsertBatchRows, "storage.insert-batch-rows", def.Storage.InsertBatchRows, "Most rows per insert statement.")
	flags.StringVar(&c.Storage.IDColumn, "storage.id-column", def.Storage.IDColumn, "Name of the key column of fragment tables.")
	flags.StringVar(&c.Storage.MeasureColumn, "storage.measure-column", def.Storage.MeasureColumn, "Name of the measure column of fragment tables.")

	flags.Int64Var(&c.Import.MemoryBudget, "import.memory-budget", def.Import.MemoryBudget, "Memory an import may use to buffer source data, in bytes.")
	flags.IntVar(&c.Import.Workers, "import.workers", def.Import.Workers, "Number of fragments imported concurrently.")
}

// setup points the command's logger at the configured destination and
// installs the tracer. The returned function releases the log file.
func setup(cio *cubestore.CmdIO, c *config.Config) (func(), error) {
	w, done := cio.Stderr, func() {}
	if c.LogPath != "" {
		f, err := os.OpenFile(c.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %v", err)
		}
		w, done = f, func() { f.Close() }
	}
	log := logger.NewLogger(w, c.Verbose)
	cio.SetLogger(log)
	tracing.GlobalTracer = cubetracing.NewTracer(opentracing.GlobalTracer(), log)
	return done, nil
}

// setAllConfig takes a FlagSet to be the definition of all configuration
// options, as well as their defaults. It then reads from the command line, the
// environment, and a config file (if specified), and applies the configuration
// in that priority order. Since each flag in the set contains a pointer to
// where its value should be stored, setAllConfig can directly modify the value
// of each config variable.
//
// setAllConfig looks for environment variables which are capitalized versions
// of the flag names with dashes and dots replaced by underscores, and prefixed
// with envPrefix plus an underscore.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	// add cmd line flag def to viper
	err := v.BindPFlags(flags)
	if err != nil {
		return err
	}

	// add env to viper
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	c := v.GetString("config")
	var flagErr error
	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	// add config file to viper
	if c != "" {
		v.SetConfigFile(c)
		v.SetConfigType("toml")
		err := v.ReadInConfig()
		if err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", c, err)
		}

		for _, key := range v.AllKeys() {
			if _, ok := validTags[key]; !ok {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	// set all values from viper
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil {
			return
		}
		var value string
		if f.Value.Type() == "stringSlice" {
			// v.GetString returns "" for a slice read from a config file.
			vss := v.GetStringSlice(f.Name)
			value = strings.Join(vss, ",")
		} else {
			value = v.GetString(f.Name)
		}

		if f.Changed {
			// Already set by a flag, the highest priority. Setting it again
			// would append to string slices.
			return
		}
		flagErr = f.Value.Set(value)
	})
	return flagErr
}
