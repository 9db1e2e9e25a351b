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

	"golang.org/x/term"

	"github.com/meishi/backend/internal/client"
)

const (
	serverEnv     = "MEISHI_SERVER"
	passwordEnv   = "MEISHI_PASSWORD"
	defaultServer = "http://localhost:8080"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

type cli struct {
	in     *bufio.Reader
	stdin  *os.File
	out    io.Writer
	errOut io.Writer
}

func newCLI(stdin *os.File, out, errOut io.Writer) *cli {
	return &cli{in: bufio.NewReader(stdin), stdin: stdin, out: out, errOut: errOut}
}

func (c *cli) usage() {
	fmt.Fprint(c.errOut, `usage: meishictl [-server URL] <command> [flags]

commands:
  register -username NAME [-name N] [-affiliation A] [-link URL ...]
  login    -username NAME
  qr       -username NAME
  exchange -qr TOKEN [-username NAME]
  account  -username NAME
  user     -target ID [-username NAME]

The password is read from MEISHI_PASSWORD or prompted for.
`)
}

func (c *cli) run(ctx context.Context, args []string) error {
	global := flag.NewFlagSet("meishictl", flag.ContinueOnError)
	global.SetOutput(c.errOut)
	global.Usage = c.usage
	server := global.String("server", envOr(serverEnv, defaultServer), "meishi server base URL")
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		c.usage()
		return errors.New("missing command")
	}

	api := client.New(*server, nil)
	name, cmdArgs := rest[0], rest[1:]

	switch name {
	case "register":
		return c.register(ctx, api, cmdArgs)
	case "login":
		return c.login(ctx, api, cmdArgs)
	case "qr":
		return c.qr(ctx, api, cmdArgs)
	case "exchange":
		return c.exchange(ctx, api, cmdArgs)
	case "account":
		return c.account(ctx, api, cmdArgs)
	case "user":
		return c.user(ctx, api, cmdArgs)
	default:
		c.usage()
		return fmt.Errorf("unknown command %q", name)
	}
}

func (c *cli) register(ctx context.Context, api *client.Client, args []string) error {
	fs := c.flagSet("register")
	username := fs.String("username", "", "username (1-15 characters)")
	name := fs.String("name", "", "display name")
	affiliation := fs.String("affiliation", "", "affiliation")
	var links stringList
	fs.Var(&links, "link", "social link, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("register: -username is required")
	}

	hash, err := c.passwordHash(*username)
	if err != nil {
		return err
	}

	reg := client.Registration{Username: *username, PasswordHash: hash, SocialLinks: links}
	if *name != "" {
		reg.Name = name
	}
	if *affiliation != "" {
		reg.Affiliation = affiliation
	}

	id, err := api.Register(ctx, reg)
	if err != nil {
		return err
	}
	return c.print(id)
}

func (c *cli) login(ctx context.Context, api *client.Client, args []string) error {
	fs := c.flagSet("login")
	username := fs.String("username", "", "username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	creds, err := c.signIn(ctx, api, *username)
	if err != nil {
		return err
	}
	return c.print(client.Identity{ID: creds.ID, Username: *username})
}

func (c *cli) qr(ctx context.Context, api *client.Client, args []string) error {
	fs := c.flagSet("qr")
	username := fs.String("username", "", "username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	creds, err := c.signIn(ctx, api, *username)
	if err != nil {
		return err
	}
	token, err := api.IssueQR(ctx, creds)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, token)
	return err
}

func (c *cli) exchange(ctx context.Context, api *client.Client, args []string) error {
	fs := c.flagSet("exchange")
	token := fs.String("qr", "", "scanned token")
	username := fs.String("username", "", "username; omit to preview without linking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("exchange: -qr is required")
	}

	var creds *client.Credentials
	if *username != "" {
		signed, err := c.signIn(ctx, api, *username)
		if err != nil {
			return err
		}
		creds = &signed
	}

	res, err := api.Exchange(ctx, *token, creds)
	if err != nil {
		return err
	}
	return c.print(res)
}

func (c *cli) account(ctx context.Context, api *client.Client, args []string) error {
	fs := c.flagSet("account")
	username := fs.String("username", "", "username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	creds, err := c.signIn(ctx, api, *username)
	if err != nil {
		return err
	}
	acct, err := api.Account(ctx, creds)
	if err != nil {
		return err
	}
	return c.print(acct)
}

func (c *cli) user(ctx context.Context, api *client.Client, args []string) error {
	fs := c.flagSet("user")
	target := fs.String("target", "", "profile id to view")
	username := fs.String("username", "", "view as this user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return errors.New("user: -target is required")
	}

	var creds *client.Credentials
	if *username != "" {
		signed, err := c.signIn(ctx, api, *username)
		if err != nil {
			return err
		}
		creds = &signed
	}

	profile, err := api.User(ctx, *target, creds)
	if err != nil {
		return err
	}
	return c.print(profile)
}

// signIn derives the hash for username and resolves it to credentials.
func (c *cli) signIn(ctx context.Context, api *client.Client, username string) (client.Credentials, error) {
	if username == "" {
		return client.Credentials{}, errors.New("-username is required")
	}
	hash, err := c.passwordHash(username)
	if err != nil {
		return client.Credentials{}, err
	}
	id, err := api.Login(ctx, username, hash)
	if err != nil {
		return client.Credentials{}, err
	}
	return client.Credentials{ID: id.ID, PasswordHash: hash}, nil
}

func (c *cli) passwordHash(username string) (string, error) {
	password, err := c.password()
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return client.HashPassword(username, password), nil
}

func (c *cli) password() (string, error) {
	if pw, ok := os.LookupEnv(passwordEnv); ok {
		return pw, nil
	}

	fd := int(c.stdin.Fd())
	if isTerminal(fd) {
		fmt.Fprint(c.errOut, "Enter password: ")
		pw, err := readPassword(fd)
		fmt.Fprintln(c.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
