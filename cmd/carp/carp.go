// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Program carp is a command-line utility for poking CARP endpoints.
package main

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/creachadair/carp/fingerprint"
	"github.com/creachadair/carp/transport"
	"github.com/creachadair/carp/wire"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
)

var callFlags struct {
	Config  string        `flag:"config,Path to a configuration file (TOML)"`
	Msgpack bool          `flag:"msgpack,Send the request body as msgpack instead of JSON"`
	Timeout time.Duration `flag:"timeout,default=30s,Exchange timeout"`
}

var printFlags struct {
	Algo string `flag:"algo,default=sha2-256,Digest algorithm for the fingerprint"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Utilities for interacting with CARP endpoints.",
		Commands: []*command.C{
			{
				Name:  "call",
				Usage: "<endpoint> <call-name> [json-params]",
				Help: `Send a call to a CARP endpoint and print the reply.

The endpoint is a URI, or an alias defined in the [endpoints] table of the
configuration file. Parameters are given as a JSON object keyed by parameter
name, already in wire form; if omitted, an empty object is sent. The prints
array of the request is populated from the pins recorded in the
configuration file for peers the call refers to.`,
				SetFlags: command.Flags(flax.MustBind, &callFlags),
				Run:      runCall,
			},
			{
				Name:  "print",
				Usage: "<cert.pem>",
				Help: `Compute the fingerprint entry for a PEM-encoded certificate.

The output is the JSON "print" object exchanged on the wire, plus the hex
form suitable for a pin in the configuration file.`,
				SetFlags: command.Flags(flax.MustBind, &printFlags),
				Run:      runPrint,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runCall(env *command.Env) error {
	if len(env.Args) < 2 || len(env.Args) > 3 {
		return env.Usagef("Required arguments: <endpoint> <call-name> [json-params]")
	}
	cfg, err := loadConfig(callFlags.Config)
	if err != nil {
		return err
	}
	endpoint := cfg.resolveEndpoint(env.Args[0])

	params := wire.Object{}
	if len(env.Args) == 3 {
		if err := json.Unmarshal([]byte(env.Args[2]), &params); err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
	}
	req := &wire.Request{
		Type:   env.Args[1],
		Params: params,
		Prints: cfg.pinTable().WireEntries(),
	}

	repo := fingerprint.NewMemRepository()
	cli := &transport.HTTP{Prints: repo}
	if callFlags.Msgpack {
		cli.ContentType = wire.ContentMsgpack
	}

	ctx, cancel := context.WithTimeout(context.Background(), callFlags.Timeout)
	defer cancel()
	rep, err := cli.Post(ctx, endpoint, req)
	if err != nil {
		return fmt.Errorf("call failed: %w", err)
	}

	fmt.Printf("%s (HTTP %d)\n", rep.Outcome, rep.Status)
	if len(rep.Body) != 0 {
		v, err := wire.Parse(rep.ContentType, rep.Body)
		if err != nil {
			fmt.Printf("%d bytes of %s (unparseable: %v)\n", len(rep.Body), rep.ContentType, err)
		} else if text, err := json.MarshalIndent(v, "", "  "); err == nil {
			fmt.Println(string(text))
		}
	}
	return nil
}

func runPrint(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("Required arguments: <cert.pem>")
	}
	data, err := os.ReadFile(env.Args[0])
	if err != nil {
		return err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return errors.New("no certificate found in input")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return fmt.Errorf("invalid certificate: %w", err)
	}
	fp, err := fingerprint.FromCertificate(printFlags.Algo, cert)
	if err != nil {
		return err
	}

	val := make([]int, len(fp.Digest))
	for i, b := range fp.Digest {
		val[i] = int(b)
	}
	text, err := json.MarshalIndent(map[string]any{"algo": fp.Algo, "val": val}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(text))
	fmt.Printf("hex: %s\n", hex.EncodeToString(fp.Digest))
	return nil
}
