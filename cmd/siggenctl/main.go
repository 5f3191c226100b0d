package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dougsko/siggen/pkg/client"
	"github.com/dougsko/siggen/pkg/control"
	"github.com/dougsko/siggen/pkg/discovery"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/spf13/cobra"
)

// ctl carries the shared flags of every subcommand
type ctl struct {
	socketPath string
	timeout    time.Duration
	jsonOut    bool
}

func (c *ctl) client() *client.SocketClient {
	sc := client.NewSocketClient(c.socketPath)
	sc.SetTimeout(c.timeout)
	return sc
}

func newRootCmd() *cobra.Command {
	c := &ctl{}
	root := &cobra.Command{
		Use:          "siggenctl",
		Short:        "siggen control tool",
		Long:         "Query and reconfigure a running siggen over its control socket.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.socketPath, "socket", control.DefaultSocketPath, "Unix socket path")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 5*time.Second, "Command timeout")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Print raw JSON")

	root.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show generator status",
			Args:  cobra.NoArgs,
			RunE:  c.status,
		},
		&cobra.Command{
			Use:   "params",
			Short: "List every parameter",
			Args:  cobra.NoArgs,
			RunE:  c.params,
		},
		&cobra.Command{
			Use:   "get key",
			Short: "Read one parameter",
			Args:  cobra.ExactArgs(1),
			RunE:  c.get,
		},
		&cobra.Command{
			Use:     "set key value",
			Short:   "Write a parameter; 'auto' selects the automatic default",
			Example: "  siggenctl set tx_freq 433.92MHz\n  siggenctl set type sweep",
			Args:    cobra.ExactArgs(2),
			RunE:    c.set,
		},
		&cobra.Command{
			Use:   "rebuild",
			Short: "Rebuild the active waveform",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.client().Rebuild()
			},
		},
		&cobra.Command{
			Use:   "ping",
			Short: "Test the connection",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.client().Ping(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "pong")
				return nil
			},
		},
		c.historyCmd(),
		c.presetCmd(),
		&cobra.Command{
			Use:     "send command...",
			Short:   "Send a raw protocol command",
			Example: "  siggenctl send SET:amplitude:0.5",
			Args:    cobra.MinimumNArgs(1),
			RunE:    c.send,
		},
		discoverCmd(),
	)
	return root
}

func (c *ctl) printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func (c *ctl) status(cmd *cobra.Command, args []string) error {
	status, err := c.client().GetStatus()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if c.jsonOut {
		return c.printJSON(out, status)
	}

	fmt.Fprintf(out, "Waveform:    %s (%s)\n", status.Type, status.Description)
	fmt.Fprintf(out, "Running:     %v\n", status.Running)
	if status.Uptime != "" {
		fmt.Fprintf(out, "Uptime:      %s\n", status.Uptime)
	}
	fmt.Fprintf(out, "Device:      %s\n", status.Device.Driver)
	fmt.Fprintf(out, "Sink inputs: %d\n", status.SinkConnections)
	for _, edge := range status.Connections {
		fmt.Fprintf(out, "  %s -> %s:%d\n", edge.From, edge.To, edge.Port)
	}
	return nil
}

func (c *ctl) params(cmd *cobra.Command, args []string) error {
	values, err := c.client().GetParams()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if c.jsonOut {
		return c.printJSON(out, values)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, values[name])
	}
	return w.Flush()
}

func (c *ctl) get(cmd *cobra.Command, args []string) error {
	key, err := params.ParseKey(args[0])
	if err != nil {
		return err
	}
	value, err := c.client().Get(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func (c *ctl) set(cmd *cobra.Command, args []string) error {
	key, err := params.ParseKey(args[0])
	if err != nil {
		return err
	}
	applied, err := c.client().Set(key, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, applied)
	return nil
}

func (c *ctl) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent parameter changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := c.client().History(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if c.jsonOut {
				return c.printJSON(out, changes)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSOURCE\tKEY\tVALUE\tERROR")
			for _, ch := range changes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					ch.Time.Local().Format("15:04:05"), ch.Source, ch.Key, ch.Value, ch.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", control.DefaultHistoryLimit, "Number of changes")
	return cmd
}

func (c *ctl) presetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage saved presets",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved presets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				presets, err := c.client().ListPresets()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.jsonOut {
					return c.printJSON(out, presets)
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tTYPE\tTX_FREQ\tUPDATED")
				for _, p := range presets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Values["type"], p.Values["tx_freq"],
						p.UpdatedAt.Local().Format(time.DateTime))
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "save name",
			Short: "Save the current parameters",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.client().SavePreset(args[0])
			},
		},
		&cobra.Command{
			Use:   "load name",
			Short: "Apply a saved preset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.client().LoadPreset(args[0])
			},
		},
		&cobra.Command{
			Use:   "delete name",
			Short: "Delete a saved preset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.client().DeletePreset(args[0])
			},
		},
	)
	return cmd
}

func (c *ctl) send(cmd *cobra.Command, args []string) error {
	resp, err := c.client().SendCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.String())
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}

func discoverCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find siggen instances announced over mDNS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := discovery.Browse(context.Background(), wait)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hosts) == 0 {
				fmt.Fprintln(out, "no instances found")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INSTANCE\tURL\tTYPE\tTX_FREQ")
			for _, h := range hosts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Instance, h.URL(), h.Text["type"], h.Text["tx_freq"])
			}
			return w.Flush()
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "How long to listen for announcements")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
