package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phozos/phozos-client/internal/apierr"
	"github.com/phozos/phozos-client/internal/models"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// authCommand returns the 'auth' subcommand for managing the session.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Phozos session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in and save the bearer token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Usage: "account email", Required: true},
					&cli.BoolFlag{Name: "password-stdin", Usage: "read the password from stdin"},
				},
				Action: authLoginAction,
			},
			{
				Name:   "logout",
				Usage:  "End the session and clear the saved token",
				Action: authLogoutAction,
			},
			{
				Name:  "status",
				Usage: "Show the saved session",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "offline", Usage: "only decode the saved token, do not ask the server"},
				},
				Action: authStatusAction,
			},
		},
	}
}

func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	password, err := readPassword(ctx, cmd)
	if err != nil {
		return err
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Phozos.Login(ctx, models.LoginInput{Email: cmd.String("email"), Password: password})
	if err != nil {
		// A rejected login is not an expired session.
		if ae, ok := apierr.As(err); ok && ae.Kind == apierr.KindAuth {
			return fmt.Errorf("login failed: %s", ae.Message)
		}

		return err
	}

	return printResult(cmd, res.User)
}

func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Phozos.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	fmt.Fprintln(cmd.Root().ErrWriter, "Logged out")

	return nil
}

// sessionClaims mirrors the claims the API puts in bearer tokens.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

type sessionStatus struct {
	LoggedIn  bool         `json:"loggedIn"`
	Subject   string       `json:"subject,omitempty"`
	Email     string       `json:"email,omitempty"`
	Role      string       `json:"role,omitempty"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
	Expired   bool         `json:"expired,omitempty"`
	User      *models.User `json:"user,omitempty"`
}

// decodeSession reads the token's claims without verifying the
// signature. The result is for display only; the server decides whether
// the session is valid.
func decodeSession(token string) (sessionStatus, error) {
	claims := &sessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return sessionStatus{}, fmt.Errorf("decoding saved token: %w", err)
	}

	st := sessionStatus{
		LoggedIn: true,
		Subject:  claims.Subject,
		Email:    claims.Email,
		Role:     claims.Role,
	}

	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		st.ExpiresAt = &exp
		st.Expired = time.Now().After(exp)
	}

	return st, nil
}

func authStatusAction(ctx context.Context, cmd *cli.Command) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	token := a.Tokens.AuthToken()
	if token == "" {
		return printResult(cmd, sessionStatus{})
	}

	st, err := decodeSession(token)
	if err != nil {
		return err
	}

	if !cmd.Bool("offline") {
		u, err := a.Phozos.Me(ctx)
		if err != nil {
			return err
		}

		st.User = &u
	}

	return printResult(cmd, st)
}

// readPassword reads from stdin with --password-stdin, otherwise prompts
// on the terminal without echo.
func readPassword(ctx context.Context, cmd *cli.Command) (string, error) {
	root := cmd.Root()

	if cmd.Bool("password-stdin") {
		line, err := bufio.NewReader(root.Reader).ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, use --password-stdin")
	}

	fmt.Fprint(root.ErrWriter, "Password: ")
	defer fmt.Fprintln(root.ErrWriter)

	type result struct {
		value []byte
		err   error
	}

	ch := make(chan result, 1)

	go func() {
		b, err := term.ReadPassword(fd)
		ch <- result{value: b, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("reading password: %w", res.err)
		}

		return string(res.value), nil
	}
}
