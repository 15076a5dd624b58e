package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"adcrate/core"
	"adcrate/host/board"
	"adcrate/host/config"
	"adcrate/host/metrics"
	"adcrate/host/sim"
	"adcrate/host/store"
)

var (
	configPath  string
	verbose     bool
	device      string
	baud        int
	parquetDir  string
	metricsAddr string
	maxRateHz   float64
	capture     time.Duration
	heartbeat   bool
)

var rootCmd = &cobra.Command{
	Use:          "adcrate-host",
	Short:        "Measure delivered ADC sample rates across a rate sweep",
	SilenceUsage: true,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Collect the sweep table a board prints on its serial port",
	RunE:  func(cmd *cobra.Command, args []string) error { return runListen(cmd) },
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the sweep against a simulated continuous ADC",
	RunE:  func(cmd *cobra.Command, args []string) error { return runSimulate(cmd) },
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&parquetDir, "parquet", "", "", "Directory to write a Parquet file of results to")
	rootCmd.PersistentFlags().StringVarP(&metricsAddr, "metrics", "", "", "Address to serve Prometheus metrics on, e.g. :9464")

	listenCmd.Flags().StringVarP(&device, "device", "d", "", "Serial device path")
	listenCmd.Flags().IntVarP(&baud, "baud", "b", 0, "Baud rate (ignored for USB CDC)")

	simulateCmd.Flags().Float64VarP(&maxRateHz, "max-rate", "", 0, "Delivery ceiling of the simulated ADC in Hz, 0 for none")
	simulateCmd.Flags().DurationVarP(&capture, "capture", "", 0, "Capture length per rate")
	simulateCmd.Flags().BoolVarP(&heartbeat, "heartbeat", "", false, "Keep logging the idle heartbeat after the sweep until interrupted")

	rootCmd.AddCommand(listenCmd, simulateCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Serial.Device = device
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baud
	}
	if flags.Changed("parquet") {
		cfg.Output.ParquetDir = parquetDir
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Listen = metricsAddr
	}
	if flags.Changed("max-rate") {
		cfg.Sim.MaxRateHz = maxRateHz
	}
	if flags.Changed("capture") {
		cfg.Sweep.Capture = capture
	}
	return cfg, nil
}

// outputs builds the reporters every command prints through. The returned
// closer flushes the Parquet file, if any.
func outputs(cfg *config.Config, source string, stdout io.Writer) (core.MultiReporter, func() error, error) {
	reps := core.MultiReporter{core.NewTextReporter(stdout)}
	closer := func() error { return nil }

	if cfg.Output.ParquetDir != "" {
		pw, err := store.NewParquetWriter(cfg.Output.ParquetDir, source, cfg.Output.BatchSize)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("writing results to %s", pw.FilePath())
		reps = append(reps, pw)
		closer = pw.Close
	}

	if cfg.Metrics.Listen != "" {
		pe := metrics.NewPrometheusExporter(source)
		go func() {
			if err := pe.StartServer(cfg.Metrics.Listen); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
		log.Printf("serving metrics on %s/metrics", cfg.Metrics.Listen)
		reps = append(reps, pe)
	}
	return reps, closer, nil
}

func runListen(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Printf("connecting to board on %s...", cfg.Serial.Device)
	b, err := board.Connect(&cfg.Serial)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer b.Close()
	b.SetVerbose(verbose)

	reps, closeOutputs, err := outputs(cfg, cfg.Metrics.SourceOr("board"), os.Stdout)
	if err != nil {
		return err
	}
	rows, err := b.Collect(ctx, reps)
	if cerr := closeOutputs(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	log.Printf("collected %d rows", rows)
	return nil
}

func runSimulate(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	core.SetLogWriter(func(s string) { log.Println(s) })
	if verbose {
		core.SetLogLevel(core.LevelDebug)
	}

	drv := sim.New(cfg.Sim)
	sweep, err := cfg.SweepFor(drv.Limits())
	if err != nil {
		return err
	}
	ctrl, err := core.NewController(drv, sweep)
	if err != nil {
		return err
	}

	reps, closeOutputs, err := outputs(cfg, cfg.Metrics.SourceOr("sim"), os.Stdout)
	if err != nil {
		ctrl.Close()
		return err
	}
	steps, err := ctrl.RunSweep(reps)
	if cerr := closeOutputs(); err == nil {
		err = cerr
	}
	if cerr := ctrl.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		core.LogError(core.LogTag, err.Error())
		return err
	}
	log.Printf("sweep finished after %d rates", steps)

	if heartbeat {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		core.Idle(core.LogTag, core.HeartbeatInterval, ctx.Done())
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
