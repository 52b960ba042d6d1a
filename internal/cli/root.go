// Package cli implements bfctl, a command line host for the BF.* commands.
// Each invocation loads the keyspace snapshot, runs one command and saves
// the snapshot again if the command may have changed it.
package cli

import (
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/jcalabro/growbloom/internal/command"
	"github.com/jcalabro/growbloom/internal/config"
	"github.com/jcalabro/growbloom/internal/keyspace"
)

type options struct {
	configPath string
	dbPath     string
}

// Execute runs bfctl with the process arguments.
func Execute() error {
	defer glog.Flush()
	return NewRootCmd().Execute()
}

// NewRootCmd builds the bfctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "bfctl",
		Short: "Manage scalable bloom filters stored in a snapshot file",
		Long: `bfctl runs BF.* commands against a keyspace of named slots.
The keyspace is stored in a buntdb file and saved after every command that
may modify it. Replies are printed as JSON.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// glog reads its flags through pflag; mark the Go flag set parsed.
			return flag.CommandLine.Parse(nil)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "growbloom.toml", "Path to the TOML configuration")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Snapshot database, overrides storage.path")
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	root.AddCommand(
		bfCommand(opts, command.Create, "create KEY ERROR_RATE [ITEM...]",
			"Create a fixed filter and add items", cobra.MinimumNArgs(2)),
		bfCommand(opts, command.Set, "set KEY ITEM...",
			"Add items, creating the filter if needed", cobra.MinimumNArgs(2)),
		bfCommand(opts, command.SetNX, "setnx KEY ITEM...",
			"Create a filter and add items, failing if it exists", cobra.MinimumNArgs(2)),
		bfCommand(opts, command.Test, "test KEY ITEM",
			"Test whether an item may be in the filter", cobra.ExactArgs(2)),
		bfCommand(opts, command.Debug, "debug KEY",
			"Show filter and generation statistics", cobra.ExactArgs(1)),
		doCmd(opts),
		putCmd(opts),
		delCmd(opts),
		keysCmd(opts),
		statsCmd(opts),
	)
	return root
}

// session is one loaded keyspace and the handler running against it.
type session struct {
	cfg     config.Config
	store   *keyspace.Store
	ks      *keyspace.Keyspace
	handler *command.Handler
	reg     *prometheus.Registry
}

func openSession(opts *options) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.Storage.Path = opts.dbPath
	}

	store, err := keyspace.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	ks, err := store.Load()
	if err != nil {
		store.Close()
		return nil, err
	}

	s := &session{cfg: cfg, store: store, ks: ks}
	var metrics *command.Metrics
	if cfg.Metrics.Enabled {
		s.reg = prometheus.NewRegistry()
		metrics = command.NewMetrics(s.reg)
	}
	s.handler = command.New(ks, command.Options{
		DefaultErrorRate: cfg.Filter.DefaultErrorRate,
		Metrics:          metrics,
	})
	glog.V(2).Infof("bfctl: session on %s with %d slots", cfg.Storage.Path, ks.Len())
	return s, nil
}

func (s *session) save() error {
	return s.store.Save(s.ks)
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		glog.Warningf("bfctl: close %s: %v", s.cfg.Storage.Path, err)
	}
}

// withSession opens a session, runs fn and closes it again.
func withSession(opts *options, fn func(*session) error) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

// writeMetrics prints the gathered counters in a "name{labels} value"
// format, one sample per line.
func (s *session) writeMetrics(w io.Writer) error {
	if s.reg == nil {
		return nil
	}
	families, err := s.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if _, err := fmt.Fprintf(w, "%s%s %g\n", mf.GetName(), formatLabels(m.GetLabel()), m.GetCounter().GetValue()); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
		}
	}
	return nil
}

func formatLabels(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
