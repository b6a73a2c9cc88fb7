package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-miniapp"
	"github.com/spf13/cobra"
)

const closeTimeout = 5 * time.Second

// withClient builds the runtime, runs fn and always flushes credential writes.
func withClient(cmd *cobra.Command, flags *globalFlags, fn func(context.Context, *miniapp.Client) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := newRuntime(ctx, flags, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if closeErr := rt.Close(closeCtx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, rt.client)
}

func newTokenCmd(flags *globalFlags) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, renewing it when needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, flags, func(ctx context.Context, client *miniapp.Client) error {
				before := client.TokenState()
				token, err := client.AccessToken(ctx)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), flags.output, map[string]any{
					"access_token": mask(token.Token, reveal),
					"expires_in":   token.ExpiresIn,
					"fetched_at":   token.FetchedAt.UTC().Format(time.RFC3339),
					"renewed":      before != miniapp.TokenStateValid,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the token instead of a mask")
	return cmd
}

func newLoginCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login <code>",
		Short: "Exchange a login code and store the user's session key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, client *miniapp.Client) error {
				result, err := client.ExchangeCode(ctx, args[0])
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), flags.output, map[string]any{
					"openid":      result.OpenID,
					"unionid":     result.UnionID,
					"session_key": mask(result.SessionKey, false),
				})
			})
		},
	}
}

func newSessionCmd(flags *globalFlags) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "session <openid>",
		Short: "Show whether a session key is stored for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(_ context.Context, client *miniapp.Client) error {
				secret, found := client.SessionSecret(args[0])
				return printRecord(cmd.OutOrStdout(), flags.output, map[string]any{
					"openid":      args[0],
					"found":       found,
					"session_key": mask(secret, reveal),
				})
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the session key instead of a mask")
	return cmd
}

func newRequestCmd(flags *globalFlags) *cobra.Command {
	var (
		method string
		data   string
		query  []string
		header []string
	)
	cmd := &cobra.Command{
		Use:   "request <path>",
		Short: "Send an authenticated call with an optional JSON body",
		Long: `
Usage: miniappctl request <path> [options]

  Sends an authenticated call. --data takes a JSON document, or @file to
  read one from disk.

      $ miniappctl request /wxa/getwxacodeunlimit --data '{"scene":"a=1"}'
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := miniapp.RequestOptions{Method: method, Path: args[0]}
			var err error
			if opts.Query, err = parsePairs(query); err != nil {
				return err
			}
			if opts.Headers, err = parsePairs(header); err != nil {
				return err
			}
			if strings.TrimSpace(data) != "" {
				if opts.Body, err = readArgument(data); err != nil {
					return err
				}
				if !json.Valid(opts.Body) {
					return fmt.Errorf("--data is not valid JSON")
				}
				opts.Headers["Content-Type"] = "application/json"
			}
			return withClient(cmd, flags, func(ctx context.Context, client *miniapp.Client) error {
				res, err := client.Request(ctx, opts)
				if err != nil {
					return err
				}
				return printResponse(cmd, flags, res)
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", "POST", "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON body or @file")
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&header, "header", "H", nil, "Header key=value (repeatable)")
	return cmd
}

func newUploadCmd(flags *globalFlags) *cobra.Command {
	var (
		fields []string
		files  []string
		query  []string
	)
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Send an authenticated multipart/form-data call",
		Long: `
Usage: miniappctl upload <path> [options]

  Plain fields use --field name=value. Files use --file name=path.

      $ miniappctl upload /cgi-bin/media/upload --query type=image --file media=./a.png
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := miniapp.UploadOptions{Path: args[0]}
			var err error
			if opts.Query, err = parsePairs(query); err != nil {
				return err
			}
			plain, err := splitPairs(fields)
			if err != nil {
				return err
			}
			for _, pair := range plain {
				opts.Fields = append(opts.Fields, miniapp.PlainValue(pair[0], pair[1]))
			}
			attachments, err := splitPairs(files)
			if err != nil {
				return err
			}
			for _, pair := range attachments {
				content, err := os.ReadFile(pair[1])
				if err != nil {
					return fmt.Errorf("read %s: %w", pair[1], err)
				}
				opts.Fields = append(opts.Fields, miniapp.FileAttachment(pair[0], content, miniapp.AttachmentOptions{
					Filename:    filepath.Base(pair[1]),
					ContentType: mime.TypeByExtension(filepath.Ext(pair[1])),
				}))
			}
			return withClient(cmd, flags, func(ctx context.Context, client *miniapp.Client) error {
				res, err := client.Upload(ctx, opts)
				if err != nil {
					return err
				}
				return printResponse(cmd, flags, res)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&fields, "field", "F", nil, "Plain field name=value (repeatable)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "File field name=path (repeatable)")
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter key=value (repeatable)")
	return cmd
}

func newPayCmd(flags *globalFlags) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "pay <path>",
		Short: "Send a signed payment call for a logged-in user",
		Long: `
Usage: miniappctl pay <path> --data <json|@file>

  The payload must carry the user's openid. The user must have logged in
  with "miniappctl login" first so the session key is stored.

      $ miniappctl pay /wxa/game/getbalance --data '{"openid":"o1","env":0}'
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readArgument(data)
			if err != nil {
				return err
			}
			payload := map[string]any{}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("--data must be a JSON object: %w", err)
			}
			return withClient(cmd, flags, func(ctx context.Context, client *miniapp.Client) error {
				res, err := client.PayRequest(ctx, args[0], payload)
				if err != nil {
					return err
				}
				return printResponse(cmd, flags, res)
			})
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON payload or @file")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func printResponse(cmd *cobra.Command, flags *globalFlags, res miniapp.Response) error {
	if res.Data != nil {
		return printRecord(cmd.OutOrStdout(), flags.output, res.Data)
	}
	_, err := cmd.OutOrStdout().Write(res.Body)
	return err
}

func readArgument(value string) ([]byte, error) {
	if strings.HasPrefix(value, "@") {
		content, err := os.ReadFile(value[1:])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", value[1:], err)
		}
		return content, nil
	}
	return []byte(value), nil
}

func parsePairs(values []string) (map[string]string, error) {
	pairs, err := splitPairs(values)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		out[pair[0]] = pair[1]
	}
	return out, nil
}

func splitPairs(values []string) ([][2]string, error) {
	out := make([][2]string, 0, len(values))
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", value)
		}
		out = append(out, [2]string{strings.TrimSpace(key), val})
	}
	return out, nil
}
