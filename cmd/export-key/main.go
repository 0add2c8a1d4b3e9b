package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"lensmint/device-identity/internal/composition/runtime"
	"lensmint/device-identity/internal/config"
	"lensmint/device-identity/internal/keyexport"
	"lensmint/device-identity/pkg/models"
)

const (
	exitOK           = 0
	exitInvalidInput = 10
	exitIdentity     = 20
	exitWriteFailed  = 30
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type target struct {
	// CameraID is empty when the registry's default camera id applies.
	CameraID string
	Path     string
}

// resolveTarget picks the camera id (argument, then CAMERA_ID or the
// config file, then the registry default) and the destination (flag, then
// DEVICE_KEY_EXPORT_PATH or the config file, then next to the executable).
func resolveTarget(arg, out string, cfg config.Config) target {
	t := target{
		CameraID: strings.TrimSpace(arg),
		Path:     strings.TrimSpace(out),
	}
	if t.CameraID == "" {
		t.CameraID = cfg.CameraID
	}
	if t.Path == "" {
		t.Path = cfg.Export.Path
	}
	if t.Path == "" {
		t.Path = keyexport.DefaultPath()
	}
	return t
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export-key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sealed := fs.Bool("sealed", false, "seal the export with "+config.EnvExportPassphrase)
	out := fs.String("out", "", "destination file (default "+config.EnvExportPath+" or next to the executable)")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitInvalidInput
	}
	if fs.NArg() > 1 {
		printUsage(stderr)
		return exitInvalidInput
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidInput
	}
	dest := resolveTarget(fs.Arg(0), *out, cfg)
	if *sealed && cfg.Export.Passphrase == "" {
		fmt.Fprintln(stderr, config.EnvExportPassphrase+" is required for --sealed")
		return exitInvalidInput
	}

	rt, err := runtime.New(cfg, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitIdentity
	}
	id, err := rt.Registry.Resolve(dest.CameraID)
	if err != nil {
		fmt.Fprintln(stderr, "failed to initialize hardware identity: "+err.Error())
		return exitIdentity
	}

	var record models.KeyExport
	if *sealed {
		record, err = keyexport.ExportSealed(id, dest.Path, cfg.Export.Passphrase)
	} else {
		record, err = keyexport.Export(id, dest.Path)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitWriteFailed
	}
	rt.Logger.Info("device key exported", "export_path", dest.Path, "address", record.Address, "sealed", *sealed)

	if _, err := fmt.Fprintf(stdout, "key exported to %s\naddress: %s\n", dest.Path, record.Address); err != nil {
		return exitWriteFailed
	}
	return exitOK
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "export-key [--sealed] [--out path] [camera-id]")
	fmt.Fprintln(w, "camera id falls back to "+config.EnvCameraID+", then to the configured default")
}
