package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kvist/reconwave/internal/command"
	"github.com/kvist/reconwave/internal/scanning"
)

var (
	scanTarget  string
	scanType    string
	scanPorts   string
	scanRate    uint
	scanTimeout uint
	scanResolve bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [command sentence]",
	Short: "Run a scan from the terminal",
	Long: `Run a scan in-process and print discovered hosts when it finishes.

The scan is described either with flags or with a command sentence:

  reconwave scan --target 192.168.1.0/24 --type port
  reconwave scan Run service scan on 10.0.0.0/16`,
	RunE: runScanCommand,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanTarget, "target", "t", "", "target IP, CIDR block, or 'internet'")
	scanCmd.Flags().StringVar(&scanType, "type", "port", "scan type: passive, port, service, os")
	scanCmd.Flags().StringVarP(&scanPorts, "ports", "p", "", "comma-separated port list (default from config)")
	scanCmd.Flags().UintVar(&scanRate, "rate-limit", 0, "probes per second (0 = unpaced)")
	scanCmd.Flags().UintVar(&scanTimeout, "timeout", 0, "scan timeout in seconds (0 = none)")
	scanCmd.Flags().BoolVar(&scanResolve, "resolve", false, "reverse-resolve discovered hosts")
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	request, err := buildScanRequest(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	orchestrator, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	receipt, err := orchestrator.StartScan(cmd.Context(), *request)
	if err != nil {
		return err
	}
	for _, warning := range receipt.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	events, err := orchestrator.Events(receipt.ScanID)
	if err != nil {
		return err
	}

	// Cancel the scan on interrupt so it finishes as Cancelled instead of
	// being killed mid-probe.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = orchestrator.CancelScan(receipt.ScanID)
	}()

	streamScanEvents(events)

	snapshot, err := orchestrator.GetScanStatus(receipt.ScanID)
	if err != nil {
		return err
	}
	printScanSummary(snapshot)

	if snapshot.Status == scanning.StatusFailed {
		return fmt.Errorf("scan failed: %s", snapshot.FailureReason)
	}
	return nil
}

// buildScanRequest assembles a request from flags, or from a command
// sentence when positional arguments are given.
func buildScanRequest(args []string) (*scanning.ScanRequest, error) {
	request := scanning.ScanRequest{
		Ports:          scanPorts,
		RateLimit:      scanRate,
		TimeoutSeconds: scanTimeout,
	}

	if len(args) > 0 {
		parsedType, target, err := command.ParseCommand(strings.Join(args, " "))
		if err != nil {
			return nil, err
		}
		request.ScanType = parsedType
		request.Target = target
	} else {
		if scanTarget == "" {
			return nil, fmt.Errorf("a target is required: use --target or a command sentence")
		}
		parsedType, _, err := command.ParseCommand(fmt.Sprintf("run %s scan on %s", scanType, scanTarget))
		if err != nil {
			return nil, err
		}
		request.ScanType = parsedType
		request.Target = scanTarget
	}

	if scanResolve {
		request.Options = map[string]string{"resolve": "true"}
	}
	return &request, nil
}

// streamScanEvents prints live findings until the scan's stream closes.
func streamScanEvents(events <-chan scanning.ProgressEvent) {
	for event := range events {
		switch event.Kind {
		case scanning.EventPortOpen:
			fmt.Printf("open  %s:%d\n", event.IP, event.Port)
		case scanning.EventProgress:
			if verbose {
				fmt.Fprintf(os.Stderr, "progress: %d probes, %d open, %.0f probes/s\n",
					event.ScannedCount, event.OpenCount, event.Rate)
			}
		case scanning.EventComplete:
			fmt.Fprintf(os.Stderr, "done: %d probes, %d open ports in %s\n",
				event.ScannedCount, event.OpenCount, event.Elapsed.Round(time.Millisecond))
		}
	}
}

// printScanSummary renders the final host table.
func printScanSummary(snapshot *scanning.ScanJobSnapshot) {
	fmt.Printf("\nScan %s: %s\n", snapshot.ScanID, snapshot.Status)
	if snapshot.FailureReason != "" {
		fmt.Printf("Reason: %s\n", snapshot.FailureReason)
	}
	if len(snapshot.Hosts) == 0 {
		fmt.Println("No open ports found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Host", "Hostname", "Port", "State", "Banner")

	for i := range snapshot.Hosts {
		host := &snapshot.Hosts[i]
		hostname := ""
		if host.Hostname != nil {
			hostname = *host.Hostname
		}
		for _, port := range host.Ports {
			banner := ""
			if port.Banner != nil {
				banner = *port.Banner
			}
			_ = table.Append([]string{
				host.IPAddr,
				hostname,
				fmt.Sprintf("%d/%s", port.Port, strings.ToLower(string(port.Protocol))),
				string(port.State),
				banner,
			})
		}
	}

	_ = table.Render()
}
