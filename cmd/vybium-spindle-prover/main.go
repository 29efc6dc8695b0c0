package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	log "github.com/inconshreveable/log15"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	vybiumspindlevm "github.com/vybium/vybium-spindle-vm/pkg/vybium-spindle-vm"
)

// claimFile is the on-disk claim format: the program hash in hex plus the
// public inputs and outputs the proof binds.
type claimFile struct {
	ProgramHash string   `json:"program_hash"`
	Inputs      []uint64 `json:"inputs"`
	Outputs     []uint64 `json:"outputs"`
}

func main() {
	app := &cli.App{
		Name:  "vybium-spindle-prover",
		Usage: "prove and verify Vybium Spindle VM executions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a config file with proof options (yaml, json or toml)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log at debug level",
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			demoCommand(),
			verifyCommand(),
			infoCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func setupLogging(c *cli.Context) error {
	lvl := log.LvlInfo
	if c.Bool("verbose") {
		lvl = log.LvlDebug
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat())))
	return nil
}

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "run a built-in program, prove it and check the proof",
		Flags: append(optionFlags(),
			&cli.StringFlag{
				Name:  "program",
				Usage: "built-in program: add, branch or fibonacci",
				Value: "add",
			},
			&cli.BoolFlag{
				Name:  "condition",
				Usage: "branch condition for the branch program",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "proof-out",
				Usage: "write the serialized proof to this file",
			},
			&cli.StringFlag{
				Name:  "claim-out",
				Usage: "write the claim JSON to this file",
			},
		),
		Action: runDemo,
	}
}

func runDemo(c *cli.Context) error {
	options, err := loadOptions(c)
	if err != nil {
		return err
	}
	demo, err := builtinProgram(c.String("program"), c.Bool("condition"))
	if err != nil {
		return err
	}

	log.Info("proving", "program", demo.name, "blowup", options.BlowupFactor,
		"queries", options.NumQueries, "hash", string(options.HashFunction))

	outputs, proof, err := vybiumspindlevm.Execute(demo.program, demo.inputs, demo.numOutputs, options)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	log.Info("proof generated", "outputs", outputs, "size", proof.Size(),
		"security", proof.SecurityLevel(), "trace", proof.Context.TraceLength())

	ok, err := vybiumspindlevm.Verify(demo.program.Hash(), demo.public, outputs, proof)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("proof did not verify")
	}
	log.Info("proof verified")

	if path := c.String("proof-out"); path != "" {
		data, err := proof.Serialize()
		if err != nil {
			return fmt.Errorf("failed to serialize proof: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write proof: %w", err)
		}
		log.Info("proof written", "path", path, "bytes", len(data))
	}
	if path := c.String("claim-out"); path != "" {
		hash := demo.program.Hash()
		claim := claimFile{
			ProgramHash: hex.EncodeToString(hash[:]),
			Inputs:      demo.public,
			Outputs:     outputs,
		}
		data, err := json.MarshalIndent(claim, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode claim: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write claim: %w", err)
		}
		log.Info("claim written", "path", path)
	}
	return nil
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "check a saved proof against a claim file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "proof",
				Usage:    "path to a serialized proof",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "claim",
				Usage:    "path to a claim JSON file",
				Required: true,
			},
		},
		Action: runVerify,
	}
}

func runVerify(c *cli.Context) error {
	claim, err := readClaim(c.String("claim"))
	if err != nil {
		return err
	}
	proof, err := readProof(c.String("proof"))
	if err != nil {
		return err
	}

	hashBytes, err := hex.DecodeString(claim.ProgramHash)
	if err != nil || len(hashBytes) != 32 {
		return fmt.Errorf("claim program hash must be 32 hex-encoded bytes")
	}
	var programHash [32]byte
	copy(programHash[:], hashBytes)

	ok, err := vybiumspindlevm.Verify(programHash, claim.Inputs, claim.Outputs, proof)
	if err != nil {
		return fmt.Errorf("proof rejected: %w", err)
	}
	if !ok {
		return fmt.Errorf("proof did not verify")
	}
	log.Info("proof verified", "outputs", claim.Outputs, "security", proof.SecurityLevel())
	return nil
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "print the metadata of a saved proof",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "proof",
				Usage:    "path to a serialized proof",
				Required: true,
			},
		},
		Action: runInfo,
	}
}

func runInfo(c *cli.Context) error {
	proof, err := readProof(c.String("proof"))
	if err != nil {
		return err
	}
	ctx := proof.Context
	fmt.Println(proof.String())
	fmt.Printf("trace length:    %d (2^%d)\n", ctx.TraceLength(), ctx.LogTraceLength)
	fmt.Printf("stack width:     %d\n", ctx.StackWidth)
	fmt.Printf("context depth:   %d\n", ctx.CtxDepth)
	fmt.Printf("blowup factor:   %d\n", ctx.BlowupFactor)
	fmt.Printf("queries:         %d\n", ctx.NumQueries)
	fmt.Printf("fri layers:      %d\n", len(proof.FRI.LayerRoots))
	fmt.Printf("public inputs:   %d\n", len(ctx.Inputs))
	fmt.Printf("outputs:         %d\n", len(ctx.Outputs))
	fmt.Printf("security level:  %d bits\n", proof.SecurityLevel())
	fmt.Printf("proof size:      %d bytes\n", proof.Size())
	return nil
}

// optionFlags are the proof parameter flags shared by proving commands.
func optionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "blowup",
			Usage: "LDE blowup factor (8 or 16)",
		},
		&cli.IntFlag{
			Name:  "queries",
			Usage: "number of spot-check queries",
		},
		&cli.StringFlag{
			Name:  "hash",
			Usage: "hash function: sha3-256, blake2b-256 or sha256",
		},
	}
}

// loadOptions layers proof parameters: defaults, then the config file,
// then explicit flags.
func loadOptions(c *cli.Context) (*vybiumspindlevm.ProofOptions, error) {
	defaults := vybiumspindlevm.DefaultProofOptions()

	v := viper.New()
	v.SetDefault("blowup", defaults.BlowupFactor)
	v.SetDefault("queries", defaults.NumQueries)
	v.SetDefault("hash", string(defaults.HashFunction))

	if path := c.String("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Debug("config loaded", "path", path)
	}

	if c.IsSet("blowup") {
		v.Set("blowup", c.Int("blowup"))
	}
	if c.IsSet("queries") {
		v.Set("queries", c.Int("queries"))
	}
	if c.IsSet("hash") {
		v.Set("hash", c.String("hash"))
	}

	options := defaults.
		WithBlowupFactor(v.GetInt("blowup")).
		WithNumQueries(v.GetInt("queries")).
		WithHashFunction(vybiumspindlevm.HashFunc(v.GetString("hash")))
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proof options: %w", err)
	}
	return options, nil
}

func readClaim(path string) (*claimFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read claim: %w", err)
	}
	var claim claimFile
	if err := json.Unmarshal(data, &claim); err != nil {
		return nil, fmt.Errorf("failed to parse claim: %w", err)
	}
	return &claim, nil
}

func readProof(path string) (*vybiumspindlevm.StarkProof, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proof: %w", err)
	}
	proof, err := vybiumspindlevm.DeserializeProof(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode proof: %w", err)
	}
	return proof, nil
}
