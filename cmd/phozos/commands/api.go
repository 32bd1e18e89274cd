package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phozos/phozos-client/internal/apiclient"
	"github.com/phozos/phozos-client/internal/models"
	"github.com/urfave/cli/v3"
)

func csrfCommand() *cli.Command {
	return &cli.Command{
		Name:  "csrf",
		Usage: "Inspect the CSRF token",
		Commands: []*cli.Command{
			{
				Name:   "refresh",
				Usage:  "Fetch a fresh CSRF token",
				Action: csrfRefreshAction,
			},
		},
	}
}

type csrfStatus struct {
	Token         string `json:"token"`
	CookieVisible bool   `json:"cookieVisible"`
	CookieMatches bool   `json:"cookieMatches"`
}

func csrfRefreshAction(ctx context.Context, cmd *cli.Command) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.API.RefreshCSRF(ctx); err != nil {
		return err
	}

	token := a.Tokens.CSRFToken()
	cookie, visible := a.Tokens.CookieValue(a.Config.CSRFCookie)

	return printResult(cmd, csrfStatus{
		Token:         token,
		CookieVisible: visible,
		CookieMatches: visible && cookie == token,
	})
}

func requestCommand() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "Send a request through the client pipeline",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON request body"},
			&cli.BoolFlag{Name: "skip-csrf", Usage: "send a mutating request without the CSRF token"},
			&cli.BoolFlag{Name: "credentials", Usage: "send cookies on requests that would not carry them"},
		},
		Action: requestAction,
	}
}

func requestAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return fmt.Errorf("expected METHOD and PATH, got %d arguments", cmd.NArg())
	}

	req := apiclient.Request{
		Method:             strings.ToUpper(cmd.Args().Get(0)),
		URL:                cmd.Args().Get(1),
		SkipCSRF:           cmd.Bool("skip-csrf"),
		IncludeCredentials: cmd.Bool("credentials"),
	}

	if data := cmd.String("data"); data != "" {
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("--data is not valid JSON")
		}

		req.Body = json.RawMessage(data)
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.API.Do(ctx, req)
	if err != nil {
		return err
	}

	if resp.IsRaw {
		_, err := cmd.Root().Writer.Write(resp.Raw)
		return err
	}

	var v any
	if err := json.Unmarshal(resp.Payload(), &v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}

	return printResult(cmd, v)
}

func universitiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "universities",
		Usage: "List or search universities",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "match name, city or country"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			unis, err := a.Phozos.Universities(ctx, cmd.String("search"))
			if err != nil {
				return err
			}

			return printResult(cmd, unis)
		},
	}
}

func forumCommand() *cli.Command {
	return &cli.Command{
		Name:  "forum",
		Usage: "Read and write forum posts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List posts, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Usage: "only this category"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := loadApp(cmd)
					if err != nil {
						return err
					}
					defer a.Close()

					posts, err := a.Phozos.ForumPosts(ctx, cmd.String("category"))
					if err != nil {
						return err
					}

					return printResult(cmd, posts)
				},
			},
			{
				Name:  "post",
				Usage: "Publish a post",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "content", Required: true},
					&cli.StringFlag{Name: "category"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := loadApp(cmd)
					if err != nil {
						return err
					}
					defer a.Close()

					post, err := a.Phozos.CreateForumPost(ctx, models.CreateForumPostInput{
						Title:    cmd.String("title"),
						Content:  cmd.String("content"),
						Category: cmd.String("category"),
					})
					if err != nil {
						return mutationError(err)
					}

					return printResult(cmd, post)
				},
			},
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Download exports",
		Commands: []*cli.Command{
			{
				Name:  "applications",
				Usage: "Download your applications as CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "write to this file instead of stdout"},
				},
				Action: exportApplicationsAction,
			},
		},
	}
}

func exportApplicationsAction(ctx context.Context, cmd *cli.Command) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	csv, err := a.Phozos.ExportApplications(ctx)
	if err != nil {
		return err
	}

	out := cmd.String("out")
	if out == "" {
		_, err := fmt.Fprint(cmd.Root().Writer, csv)
		return err
	}

	if err := os.WriteFile(out, []byte(csv), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	return nil
}

func documentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "documents",
		Usage: "Manage uploaded documents",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List uploaded documents",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := loadApp(cmd)
					if err != nil {
						return err
					}
					defer a.Close()

					docs, err := a.Phozos.Documents(ctx)
					if err != nil {
						return err
					}

					return printResult(cmd, docs)
				},
			},
			{
				Name:      "upload",
				Usage:     "Upload a file",
				ArgsUsage: "FILE",
				Action:    documentsUploadAction,
			},
		},
	}
}

func documentsUploadAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("expected one FILE argument")
	}

	path := cmd.Args().First()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Phozos.UploadDocument(ctx, filepath.Base(path), f)
	if err != nil {
		return mutationError(err)
	}

	return printResult(cmd, doc)
}
