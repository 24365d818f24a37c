package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/linch-mind/daemon/internal/config"
	"github.com/linch-mind/daemon/internal/connector"
	"github.com/linch-mind/daemon/internal/ipc"
)

// cli wraps the IPC client for the command-line subcommands.
type cli struct {
	flags *GlobalFlags
}

func newCLI(flags *GlobalFlags) *cli { return &cli{flags: flags} }

// connect resolves the socket path (flag first, then config defaults) and
// dials the daemon.
func (c *cli) connect() (*ipc.Client, error) {
	addr := c.flags.Socket
	if addr == "" {
		cfg, err := config.Load(c.flags.ConfigPath)
		if err != nil {
			return nil, err
		}
		addr = cfg.SocketPath
	}
	client, err := ipc.Dial(addr, c.flags.Timeout)
	if err != nil {
		return nil, fmt.Errorf("is the daemon running? %w", err)
	}
	return client, nil
}

func (c *cli) statusAll() error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var result struct {
		Collectors []connector.RuntimeStatus `json:"collectors"`
	}
	if err := client.CallInto("GET", "/connector-lifecycle/collectors", nil, &result); err != nil {
		return err
	}
	printStatuses(result.Collectors)
	return nil
}

func (c *cli) statusOne(id string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var st connector.RuntimeStatus
	if err := client.CallInto("GET", "/connector-lifecycle/collectors/"+id, nil, &st); err != nil {
		return err
	}
	printStatuses([]connector.RuntimeStatus{st})
	return nil
}

func (c *cli) discovery() error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var result struct {
		Connectors []connector.Descriptor `json:"connectors"`
	}
	if err := client.CallInto("GET", "/connector-lifecycle/discovery", nil, &result); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tVERSION\tENABLED")
	for _, d := range result.Connectors {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", d.ID, d.DisplayName, d.Version, d.Enabled)
	}
	return w.Flush()
}

// lifecycle posts one of the per-connector actions and prints the resulting
// status.
func (c *cli) lifecycle(id, action string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var st connector.RuntimeStatus
	path := "/connector-lifecycle/collectors/" + id + "/" + action
	if err := client.CallInto("POST", path, nil, &st); err != nil {
		return err
	}
	printStatuses([]connector.RuntimeStatus{st})
	return nil
}

func (c *cli) install(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read descriptor: %w", err)
	}
	var raw json.RawMessage = data
	if !json.Valid(data) {
		return fmt.Errorf("descriptor %s is not valid JSON", file)
	}

	client, err := c.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var st connector.RuntimeStatus
	if err := client.CallInto("POST", "/connector-lifecycle/install", raw, &st); err != nil {
		return err
	}
	fmt.Printf("installed %s\n", st.ConnectorID)
	printStatuses([]connector.RuntimeStatus{st})
	return nil
}

func printStatuses(statuses []connector.RuntimeStatus) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATE\tPID\tHEARTBEAT\tERROR")
	for _, st := range statuses {
		pid := "-"
		if st.PID != 0 {
			pid = fmt.Sprintf("%d", st.PID)
		}
		hb := "-"
		if !st.LastHeartbeat.IsZero() {
			hb = fmt.Sprintf("%s ago", time.Since(st.LastHeartbeat).Round(time.Second))
		}
		errCol := "-"
		if st.ErrorCode != "" {
			errCol = st.ErrorCode + ": " + st.ErrorMessage
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", st.ConnectorID, st.State, pid, hb, errCol)
	}
	_ = w.Flush()
}
