// Command oepdump spawns a packed executable under instrumentation, waits for
// it to reach its original entry point and dumps the unpacked in-memory image.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"oepdump/config"
	"oepdump/dump"
	"oepdump/hexdump"
	"oepdump/process"
	"oepdump/session"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/spf13/cobra"
)

const oepPreviewSize = 64

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		outputDir  string
		timeout    string
		agentPath  string
		preview    bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "oepdump [flags] <executable>",
		Short: "Dump a packed executable once it reaches its original entry point",
		Long: `oepdump spawns the executable suspended, injects the tracing agent,
resumes it and waits for the agent to report the original entry point (OEP).
Once the packer has finished unpacking, the main module's memory is written
to disk together with a metadata index.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], configPath, outputDir, timeout, agentPath, preview, verbose)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "oepdump.yml", "configuration file")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default <dump-dir>/<module>-<pid>)")
	cmd.Flags().StringVarP(&timeout, "timeout", "t", "", "how long to wait for the OEP, e.g. 2m")
	cmd.Flags().StringVar(&agentPath, "agent", "", "agent payload to inject (overrides config)")
	cmd.Flags().BoolVar(&preview, "preview", false, "hexdump the bytes at the OEP before dumping")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log the target's module list after the OEP")

	return cmd
}

func run(exePath, configPath, outputDir, timeout, agentPath string, preview, verbose bool) error {
	log := logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "oepdump"))

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if agentPath != "" {
		cfg.AgentPath = agentPath
	}
	if timeout != "" {
		cfg.OEPTimeout = timeout
	}

	callTimeout, err := cfg.CallTimeoutValue()
	if err != nil {
		return err
	}
	oepTimeout, err := cfg.OEPTimeoutValue()
	if err != nil {
		return err
	}

	notification := session.NewOEPNotification()
	manager := session.NewManager(session.Options{
		AgentPath:   cfg.AgentPath,
		AgentPort:   cfg.AgentPort,
		CallTimeout: callTimeout,
		Log:         log,
	})

	controller, err := manager.SpawnAndInstrument(exePath, notification.Notify)
	if err != nil {
		return err
	}

	event, err := notification.Wait(oepTimeout)
	if err != nil {
		log.Warn("Target never reached its OEP: ", err)
		controller.TerminateProcess()
		return err
	}

	log.Infoln("OEP reached: base", event.Base.ToString(), "entry", event.OEP.ToString())

	if verbose {
		modules, err := controller.EnumerateModules()
		if err != nil {
			log.Warn("Module enumeration failed: ", err)
		} else {
			log.Infoln("Loaded modules:", modules)
		}
	}

	if preview {
		data, err := controller.ReadProcessMemory(event.OEP, oepPreviewSize)
		if err != nil {
			log.Warn("OEP preview read failed: ", err)
		} else {
			opts := hexdump.DefaultOptions()
			opts.StartOffset = uint64(event.OEP)
			fmt.Print(hexdump.Dump(data, opts))
		}
	}

	if outputDir == "" {
		outputDir = filepath.Join(cfg.DumpDir,
			fmt.Sprintf("%s-%d", controller.MainModuleName(), controller.PID()))
	}

	result, err := dump.New(controller, log).DumpImage(event, outputDir)
	if err != nil {
		controller.TerminateProcess()
		return err
	}

	if err := controller.TerminateProcess(); err != nil && err != process.ErrSessionClosed {
		log.Warn("Terminating target: ", err)
	}

	fmt.Printf("Dumped %d ranges (%d bytes) to %s\n",
		result.RangesDumped, result.BytesDumped, result.Directory)

	return nil
}
