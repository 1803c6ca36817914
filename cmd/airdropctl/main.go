package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"refdrop/internal/passphrase"
	"refdrop/crypto"
	"refdrop/native/airdrop"
	api "refdrop/sdk/airdrop"
	"refdrop/services/airdropd"
)

const (
	defaultEndpoint = "http://localhost:7080"
	endpointEnv     = "AIRDROPCTL_ENDPOINT"
	tokenEnv        = "AIRDROPCTL_TOKEN"
	defaultPassEnv  = "AIRDROPD_SIGNER_PASSPHRASE"
	requestTimeout  = 30 * time.Second
)

type cli struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time
}

func main() {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv, now: time.Now}
	if err := c.run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) usage() {
	fmt.Fprintln(c.stderr, `Usage: airdropctl <command> [flags]

Key management:
  keygen       generate the signer master keystore
  derive       print the payout address derived for a principal
  token        issue a bearer token for a principal

Administration (requires --endpoint and --token or AIRDROPCTL_ENDPOINT/AIRDROPCTL_TOKEN):
  add-codes    append codes to the pool from arguments or --file
  add-admin    grant the admin role
  add-manager  authorise a manager
  kill         engage the emergency stop
  revive       release the emergency stop
  export       list untransferred payout entries from --index
  ack          acknowledge a payout for --address from --index
  stats        print the operator summary`)
}

func (c *cli) run(args []string) error {
	if len(args) < 1 {
		c.usage()
		return errors.New("command required")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "keygen":
		return c.keygen(rest)
	case "derive":
		return c.derive(rest)
	case "token":
		return c.token(rest)
	case "add-codes":
		return c.addCodes(rest)
	case "add-admin":
		return c.addAdmin(rest)
	case "add-manager":
		return c.addManager(rest)
	case "kill", "revive":
		return c.toggle(cmd, rest)
	case "export":
		return c.export(rest)
	case "ack":
		return c.ack(rest)
	case "stats":
		return c.stats(rest)
	case "help", "-h", "--help":
		c.usage()
		return nil
	default:
		c.usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	out := fs.String("out", "signer.keystore", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	light := fs.Bool("light", false, "Use light scrypt parameters (development only)")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("keystore %s already exists (use --force to overwrite)", *out)
		}
	}
	pass, err := passphrase.NewSource(*passEnv, "signer").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	strength := crypto.StrengthStandard
	if *light {
		strength = crypto.StrengthLight
	}
	if err := crypto.SaveToKeystoreWith(*out, key, pass, strength); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Keystore written to %s\nMaster address: %s\n", *out, key.PubKey().Address())
	return nil
}

func (c *cli) derive(args []string) error {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	keystore := fs.String("keystore", "signer.keystore", "Signer keystore path")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	principal := fs.String("principal", "", "Principal to resolve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*principal) == "" {
		return errors.New("--principal is required")
	}
	pass, err := passphrase.NewSource(*passEnv, "signer").Get()
	if err != nil {
		return err
	}
	master, err := crypto.LoadFromKeystore(*keystore, pass)
	if err != nil {
		return err
	}
	resolver, err := crypto.NewDerivedResolver(master, 0)
	if err != nil {
		return err
	}
	address, err := resolver.Resolve(context.Background(), *principal)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, address)
	return nil
}

func (c *cli) token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	secret := fs.String("secret", "", "HMAC secret shared with airdropd")
	secretFile := fs.String("secret-file", "", "File containing the HMAC secret")
	issuer := fs.String("issuer", "", "Token issuer")
	audience := fs.String("audience", "", "Token audience")
	principal := fs.String("principal", "", "Principal the token authenticates")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key := *secret
	if *secretFile != "" {
		contents, err := os.ReadFile(*secretFile)
		if err != nil {
			return fmt.Errorf("read secret file: %w", err)
		}
		key = strings.TrimSpace(string(contents))
	}
	signed, err := airdropd.IssueToken(key, *issuer, *audience, airdrop.Principal(strings.TrimSpace(*principal)), *ttl, c.now())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, signed)
	return nil
}

type remote struct {
	fs       *flag.FlagSet
	endpoint *string
	token    *string
}

func (c *cli) remoteFlags(name string) *remote {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	endpoint := c.getenv(endpointEnv)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &remote{
		fs:       fs,
		endpoint: fs.String("endpoint", endpoint, "airdropd base URL"),
		token:    fs.String("token", c.getenv(tokenEnv), "Bearer token"),
	}
}

func (r *remote) client() (*api.Client, error) {
	return api.New(*r.endpoint, *r.token)
}

func (c *cli) addCodes(args []string) error {
	r := c.remoteFlags("add-codes")
	file := r.fs.String("file", "", "File with one code per line")
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	codes := make([]airdrop.Code, 0, r.fs.NArg())
	for _, arg := range r.fs.Args() {
		codes = append(codes, airdrop.Code(arg))
	}
	if *file != "" {
		fromFile, err := readCodes(*file)
		if err != nil {
			return err
		}
		codes = append(codes, fromFile...)
	}
	if len(codes) == 0 {
		return errors.New("no codes supplied")
	}
	client, err := r.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := client.AddCodes(ctx, codes)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Added %d codes, %d in pool\n", resp.Added, resp.Remaining)
	return nil
}

func readCodes(path string) ([]airdrop.Code, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var codes []airdrop.Code
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		codes = append(codes, airdrop.Code(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return codes, nil
}

func (c *cli) addAdmin(args []string) error {
	r := c.remoteFlags("add-admin")
	principal := r.fs.String("principal", "", "Principal to promote")
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	client, err := r.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := client.AddAdmin(ctx, airdrop.Principal(*principal)); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s is now an admin\n", *principal)
	return nil
}

func (c *cli) addManager(args []string) error {
	r := c.remoteFlags("add-manager")
	principal := r.fs.String("principal", "", "Manager principal")
	name := r.fs.String("name", "", "Display name")
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	client, err := r.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := client.AddManager(ctx, airdrop.Principal(*principal), *name); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s is now a manager\n", *principal)
	return nil
}

func (c *cli) toggle(cmd string, args []string) error {
	r := c.remoteFlags(cmd)
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	client, err := r.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if cmd == "kill" {
		err = client.Kill(ctx)
	} else {
		err = client.Revive(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s: ok\n", cmd)
	return nil
}

func (c *cli) export(args []string) error {
	r := c.remoteFlags("export")
	index := r.fs.Uint64("index", 0, "Ledger index to export from")
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	client, err := r.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := client.GetAirdrop(ctx, airdrop.Index(*index))
	if err != nil {
		return err
	}
	return c.printJSON(resp)
}

func (c *cli) ack(args []string) error {
	r := c.remoteFlags("ack")
	index := r.fs.Uint64("index", 0, "Ledger index the acknowledgement applies from")
	address := r.fs.String("address", "", "Paid address")
	amount := r.fs.Uint64("amount", 0, "Amount paid")
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*address) == "" {
		return errors.New("--address is required")
	}
	client, err := r.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	entry := airdrop.PayoutEntry{Address: airdrop.Address(*address), Amount: *amount}
	if err := client.PutAirdrop(ctx, airdrop.Index(*index), entry); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Acknowledged %s from index %d\n", *address, *index)
	return nil
}

func (c *cli) stats(args []string) error {
	r := c.remoteFlags("stats")
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	client, err := r.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	return c.printJSON(stats)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
