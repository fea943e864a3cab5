package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pluisje-go/internal/client"
)

var chatNoStream bool

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Chat with a running server",
	Long: `Log in to a running pluisje-server and chat. With a prompt argument one
exchange is made; without, prompts are read line by line.

Commands in interactive mode:
  /image <prompt>   generate an image
  /reset            start a new conversation window
  /quit             leave

Examples:
  pluisje chat -e pluis@example.com
  pluisje chat -e pluis@example.com "Wat is een pluisje?"
  pluisje chat --server https://pluisje.example -e pluis@example.com`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "wait for the full reply instead of streaming")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := getClient(ctx, cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		return chatOnce(ctx, c, out, strings.Join(args, " "))
	}

	fmt.Fprintln(out, defaultTheme.hintStyle().Render("Type a prompt, /image <prompt>, /reset or /quit."))
	for {
		fmt.Fprint(out, defaultTheme.userStyle().Render("> "))
		line, err := readLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/reset":
			if err := c.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, defaultTheme.hintStyle().Render("New conversation."))
		case strings.HasPrefix(line, "/image "):
			url, err := c.GenerateImage(ctx, strings.TrimPrefix(line, "/image "))
			if err != nil {
				if reportChatError(out, err) {
					continue
				}
				return err
			}
			fmt.Fprintln(out, defaultTheme.assistantStyle().Render("Pluisje:")+" "+url)
		default:
			if err := chatOnce(ctx, c, out, line); err != nil {
				return err
			}
		}
	}
}

// chatOnce sends one prompt and prints the reply. Server-side rejections are
// printed and do not end the session.
func chatOnce(ctx context.Context, c *client.Client, out io.Writer, prompt string) error {
	fmt.Fprint(out, defaultTheme.assistantStyle().Render("Pluisje:")+" ")

	if chatNoStream {
		reply, err := c.Generate(ctx, prompt)
		if err != nil {
			if reportChatError(out, err) {
				return nil
			}
			return err
		}
		fmt.Fprintln(out, reply.Text())
		if reply.ShortResponse != "" {
			fmt.Fprintln(out, defaultTheme.hintStyle().Render(reply.ShortResponse))
		}
		return nil
	}

	done, err := c.Stream(ctx, prompt, func(chunk string) error {
		_, err := fmt.Fprint(out, chunk)
		return err
	})
	if err != nil {
		if reportChatError(out, err) {
			return nil
		}
		return err
	}
	fmt.Fprintln(out)
	if done.ShortResponse != "" {
		fmt.Fprintln(out, defaultTheme.hintStyle().Render(done.ShortResponse))
	}
	return nil
}

// reportChatError prints API errors and reports whether err was one.
func reportChatError(out io.Writer, err error) bool {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	fmt.Fprintln(out, defaultTheme.errorStyle().Render(apiErr.Message))
	return true
}
