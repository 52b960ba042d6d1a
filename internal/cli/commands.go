package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/tinylib/msgp/msgp"

	"github.com/jcalabro/growbloom"
	"github.com/jcalabro/growbloom/internal/command"
	"github.com/jcalabro/growbloom/internal/keyspace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bfCommand wraps one BF.* command. The positional arguments are passed
// through unchanged.
func bfCommand(opts *options, name, use, short string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  fmt.Sprintf("%s. Runs %s.", short, name),
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBF(cmd, opts, append([]string{name}, args...))
		},
	}
}

func doCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "do COMMAND [ARG...]",
		Short: "Run a raw BF.* command",
		Long:  `Run a command by name, e.g. "bfctl do BF.SET users alice bob".`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBF(cmd, opts, args)
		},
	}
}

func runBF(cmd *cobra.Command, opts *options, args []string) error {
	return withSession(opts, func(s *session) error {
		reply, err := s.handler.Do(args...)
		if err != nil {
			if merr := s.writeMetrics(cmd.ErrOrStderr()); merr != nil {
				glog.Warningf("bfctl: %v", merr)
			}
			return err
		}
		if command.IsWrite(args[0]) {
			if err := s.save(); err != nil {
				return err
			}
		}
		if err := printReply(cmd.OutOrStdout(), reply); err != nil {
			return err
		}
		return s.writeMetrics(cmd.ErrOrStderr())
	})
}

// printReply renders a MessagePack reply as one line of JSON.
func printReply(w io.Writer, reply []byte) error {
	if _, err := msgp.UnmarshalAsJSON(w, reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	_, err := fmt.Fprintln(w)
	return err
}

func putCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "put KEY VALUE",
		Short: "Store a plain string value in a slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, func(s *session) error {
				s.ks.SetString(args[0], args[1])
				if err := s.save(); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return err
			})
		},
	}
}

func delCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "del KEY",
		Short: "Delete a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, func(s *session) error {
				deleted := s.ks.Delete(args[0])
				if deleted {
					if err := s.save(); err != nil {
						return err
					}
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), deleted)
				return err
			})
		},
	}
}

type slotEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func keysCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List slots and their types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, func(s *session) error {
				entries := make([]slotEntry, 0, s.ks.Len())
				for _, name := range s.ks.Keys() {
					typ := "string"
					if _, status := s.ks.Resolve(name, keyspace.Read); status == keyspace.OK {
						typ = "bloom"
					}
					entries = append(entries, slotEntry{Name: name, Type: typ})
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			})
		},
	}
}

// filterStats is growbloom.Info plus the derived numbers bfctl reports.
type filterStats struct {
	growbloom.Info
	Capacity                   uint64  `json:"capacity"`
	MemUsage                   uint64  `json:"mem_usage"`
	EstimatedFalsePositiveRate float64 `json:"estimated_fp_rate"`
}

func statsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [KEY...]",
		Short: "Show filter statistics as JSON",
		Long: `Show the statistics of the named filters, or of every filter when
no key is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, func(s *session) error {
				names := args
				if len(names) == 0 {
					for _, name := range s.ks.Keys() {
						if _, status := s.ks.Resolve(name, keyspace.Read); status == keyspace.OK {
							names = append(names, name)
						}
					}
				}

				stats := make(map[string]filterStats, len(names))
				for _, name := range names {
					f, status := s.ks.Resolve(name, keyspace.Read)
					if status != keyspace.OK {
						return fmt.Errorf("%s: %w", name, status.Err())
					}
					info, err := growbloom.Describe(f)
					if err != nil {
						return err
					}
					stats[name] = filterStats{
						Info:                       info,
						Capacity:                   f.Capacity(),
						MemUsage:                   f.MemUsage(),
						EstimatedFalsePositiveRate: f.EstimatedFalsePositiveRate(),
					}
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimSpace(string(b)))
	return err
}
