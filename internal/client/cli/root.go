package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) getStatus() string {
	s := a.orch.Session()
	if s.Profile != nil && s.Profile.Email != "" {
		return fmt.Sprintf("(%s %s)", s.Profile.Email, s.Status)
	}
	return fmt.Sprintf("(%s)", s.Status)
}

// Root runs the interactive loop. Unknown commands are reported back to the
// user; command handlers log their own errors so the loop stays resilient.
func (a *App) Root(ctx context.Context) {
	a.printer("Welcome to the session-keeper CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("skcli %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			a.printer("Available commands: login, callback <url>, status, token, profile, get <path>, logout, exit")
		case "login":
			a.login(ctx)
		case "callback":
			a.callback(ctx, args)
		case "status":
			a.status()
		case "token":
			a.token(ctx)
		case "profile":
			a.profile(ctx)
		case "get":
			a.get(ctx, args)
		case "logout":
			a.logout(ctx)
		case "exit", "quit":
			a.printer("Bye!")
			return
		default:
			a.printer("Unknown command: %s", cmd)
		}
	}
}
