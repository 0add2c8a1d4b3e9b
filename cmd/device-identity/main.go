package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"lensmint/device-identity/internal/composition/runtime"
	"lensmint/device-identity/internal/config"
	"lensmint/device-identity/internal/identity"
	"lensmint/device-identity/internal/saltstore"
)

const (
	exitOK           = 0
	exitInvalid      = 1
	exitInvalidInput = 10
	exitIdentity     = 20
	exitWriteFailed  = 30
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}

	switch os.Args[1] {
	case "info":
		runInfo(os.Args[2:])
	case "sign-hash":
		runSignHash(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	case "backup-phrase":
		runBackupPhrase(os.Args[2:])
	case "restore-salt":
		runRestoreSalt(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitInvalidInput)
	}
}

type commonFlags struct {
	cameraID *string
	metrics  *bool
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs, commonFlags{
		cameraID: fs.String("camera-id", "", "camera id override (default "+config.EnvCameraID+")"),
		metrics:  fs.Bool("metrics", false, "dump counters to stderr on exit"),
	}
}

func parse(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
}

func newRuntime(common commonFlags) *runtime.Runtime {
	cfg, err := config.Load()
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if v := strings.TrimSpace(*common.cameraID); v != "" {
		cfg.CameraID = v
	}
	rt, err := runtime.New(cfg, os.Stderr)
	if err != nil {
		writeStderrln(err.Error(), exitIdentity)
	}
	return rt
}

func loadIdentity(rt *runtime.Runtime) *identity.Identity {
	id, err := rt.Registry.Get()
	if err != nil {
		writeStderrln("failed to initialize hardware identity: "+err.Error(), exitIdentity)
	}
	return id
}

func exit(rt *runtime.Runtime, common commonFlags, code int) {
	if *common.metrics {
		if err := rt.WriteMetrics(os.Stderr); err != nil {
			writeStderrln(err.Error(), code)
		}
	}
	os.Exit(code)
}

func runInfo(args []string) {
	fs, common := newFlagSet("info")
	asJSON := fs.Bool("json", false, "emit json")
	parse(fs, args)

	rt := newRuntime(common)
	id := loadIdentity(rt)
	info := id.Info()
	if *asJSON {
		if err := printJSON(info); err != nil {
			writeStderrln(err.Error(), exitWriteFailed)
		}
	} else {
		writeStdoutf(exitWriteFailed,
			"address=%s checksum=%s algorithm=%s camera_id=%s salt_path=%s\npublic_key=%s\n",
			info.Address,
			id.ChecksumAddress(),
			info.AddressAlgorithm,
			info.CameraID,
			info.SaltPath,
			info.PublicKeyHex,
		)
	}
	exit(rt, common, exitOK)
}

func runSignHash(args []string) {
	fs, common := newFlagSet("sign-hash")
	hash := fs.String("hash", "", "32-byte digest as hex, 0x prefix optional")
	parse(fs, args)
	if strings.TrimSpace(*hash) == "" {
		writeStderrln("hash is required", exitInvalidInput)
	}

	rt := newRuntime(common)
	id := loadIdentity(rt)
	record, err := id.SignHashHex(strings.TrimSpace(*hash))
	if err != nil {
		code := exitIdentity
		if errors.Is(err, identity.ErrInvalidHash) {
			code = exitInvalidInput
		}
		writeStderrln(err.Error(), code)
	}
	if err := printJSON(record); err != nil {
		writeStderrln(err.Error(), exitWriteFailed)
	}
	exit(rt, common, exitOK)
}

func runVerify(args []string) {
	fs, common := newFlagSet("verify")
	data := fs.String("data", "", "signed data as text")
	sig := fs.String("sig", "", "signature as hex: r||s, r||s||v or DER")
	parse(fs, args)
	if *sig == "" {
		writeStderrln("sig is required", exitInvalidInput)
	}

	rt := newRuntime(common)
	id := loadIdentity(rt)
	ok, err := id.VerifyHex([]byte(*data), strings.TrimSpace(*sig))
	if err != nil {
		writeStderrln(err.Error(), exitIdentity)
	}
	writeStdoutf(exitWriteFailed, "valid=%v\n", ok)
	if !ok {
		exit(rt, common, exitInvalid)
	}
	exit(rt, common, exitOK)
}

func runBackupPhrase(args []string) {
	fs, common := newFlagSet("backup-phrase")
	parse(fs, args)

	rt := newRuntime(common)
	salt, err := rt.Salts.GetOrCreate()
	if err != nil {
		writeStderrln(err.Error(), exitIdentity)
	}
	phrase, err := saltstore.Phrase(salt)
	if err != nil {
		writeStderrln(err.Error(), exitIdentity)
	}
	writeStdoutln(exitWriteFailed, phrase)
	exit(rt, common, exitOK)
}

func runRestoreSalt(args []string) {
	fs, common := newFlagSet("restore-salt")
	phrase := fs.String("phrase", "", "24-word recovery phrase")
	parse(fs, args)
	if strings.TrimSpace(*phrase) == "" {
		writeStderrln("phrase is required", exitInvalidInput)
	}

	rt := newRuntime(common)
	salt, err := rt.Salts.Restore(*phrase)
	if err != nil {
		code := exitWriteFailed
		switch {
		case errors.Is(err, saltstore.ErrInvalidPhrase):
			code = exitInvalidInput
		case errors.Is(err, saltstore.ErrSaltExists):
			code = exitIdentity
		}
		writeStderrln(err.Error(), code)
	}
	id := loadIdentity(rt)
	writeStdoutf(exitWriteFailed, "salt restored to %s\naddress: %s\n", salt.Path, id.Address())
	exit(rt, common, exitOK)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	writeStdoutln(exitInvalidInput, "device-identity <command> [flags]")
	writeStdoutln(exitInvalidInput, "commands:")
	writeStdoutln(exitInvalidInput, "  info          [--json]")
	writeStdoutln(exitInvalidInput, "  sign-hash     --hash <hex>")
	writeStdoutln(exitInvalidInput, "  verify        --data <text> --sig <hex>")
	writeStdoutln(exitInvalidInput, "  backup-phrase")
	writeStdoutln(exitInvalidInput, "  restore-salt  --phrase \"<24 words>\"")
	writeStdoutln(exitInvalidInput, "all commands accept [--camera-id id] [--metrics]")
}

func writeStdoutln(exitCode int, line string) {
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		os.Exit(exitCode)
	}
}

func writeStdoutf(exitCode int, format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stdout, format, args...); err != nil {
		os.Exit(exitCode)
	}
}

func writeStderrln(line string, exitCode int) {
	if _, err := fmt.Fprintln(os.Stderr, line); err != nil {
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}
