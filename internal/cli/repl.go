package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Status(ctx context.Context) error
	AddContainer(ctx context.Context, orderNumber, containerID string) error
	AddMaterial(ctx context.Context, orderNumber, material string, kg float64) error
	Sign(ctx context.Context, orderNumber, signer string) error
	StartService(ctx context.Context, orderNumber, serviceTypeID string) error
	StopService(ctx context.Context, orderNumber, serviceTypeID string) error
	Adjust(ctx context.Context, orderNumber, serviceTypeID, startStr, endStr string) error
	Entries(ctx context.Context, orderNumber string) error
	Issues(ctx context.Context, orderNumber string) error
	Complete(ctx context.Context, orderNumber string, acknowledged bool) error
	Sync(ctx context.Context) error
}

// Root starts the interactive shell on stdin.
func (a *App) Root(ctx context.Context) {
	printlnFn("fieldsync CLI (type 'help' for commands)")
	runREPL(ctx, a, a.promptStatus, bufio.NewScanner(os.Stdin))
}

func (a *App) promptStatus() string {
	st := a.tracker.GetStatus()
	qs := a.queue.Status()
	if st.IsOnline {
		return fmt.Sprintf("online|%s", qs.State)
	}
	return fmt.Sprintf("offline %s|%s", st.OfflineDuration.Round(time.Minute), qs.State)
}

// runREPL reads a line from the provided scanner, parses the first token as
// the command, and dispatches to methods on 'a'. Unknown commands are
// reported back to the user. The loop exits on scanner EOF or when the user
// types "exit" or "quit".
//
// Commands
//
//	status                                   — connectivity, countdown and queue state
//	addcontainer <order> <container-id>      — queue a container pickup
//	addmaterial <order> <material> <kg>      — queue a consumed material
//	sign <order> <name>                      — queue a customer signature
//	start <order> <service-type>             — start working a service type
//	stop <order> <service-type>              — stop the running service type
//	adjust <order> <service-type> <HH:MM> <HH:MM> — correct a time entry
//	entries <order>                          — list time entries
//	issues <order>                           — list open compliance issues
//	complete <order> [ack]                   — complete the order
//	sync                                     — force an immediate sync
//	exit | quit                              — leave the program
//
// Errors returned by command handlers are printed and the loop continues;
// a single failed command must not end the shell.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("fs> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn("Available commands: status, addcontainer, addmaterial, sign, start, stop, adjust, entries, issues, complete, sync, exit")

		case "status":
			err = a.Status(ctx)

		case "addcontainer":
			if len(args) < 2 {
				printlnFn("Usage: addcontainer <order> <container-id>")
				continue
			}
			err = a.AddContainer(ctx, args[0], args[1])

		case "addmaterial":
			if len(args) < 3 {
				printlnFn("Usage: addmaterial <order> <material> <kg>")
				continue
			}
			var kg float64
			kg, err = strconv.ParseFloat(args[2], 64)
			if err != nil {
				printlnFn("Invalid weight:", args[2])
				continue
			}
			err = a.AddMaterial(ctx, args[0], args[1], kg)

		case "sign":
			if len(args) < 2 {
				printlnFn("Usage: sign <order> <name>")
				continue
			}
			err = a.Sign(ctx, args[0], strings.Join(args[1:], " "))

		case "start":
			if len(args) < 2 {
				printlnFn("Usage: start <order> <service-type>")
				continue
			}
			err = a.StartService(ctx, args[0], args[1])

		case "stop":
			if len(args) < 2 {
				printlnFn("Usage: stop <order> <service-type>")
				continue
			}
			err = a.StopService(ctx, args[0], args[1])

		case "adjust":
			if len(args) < 4 {
				printlnFn("Usage: adjust <order> <service-type> <start HH:MM> <end HH:MM>")
				continue
			}
			err = a.Adjust(ctx, args[0], args[1], args[2], args[3])

		case "entries":
			if len(args) < 1 {
				printlnFn("Usage: entries <order>")
				continue
			}
			err = a.Entries(ctx, args[0])

		case "issues":
			if len(args) < 1 {
				printlnFn("Usage: issues <order>")
				continue
			}
			err = a.Issues(ctx, args[0])

		case "complete":
			if len(args) < 1 {
				printlnFn("Usage: complete <order> [ack]")
				continue
			}
			ack := len(args) > 1 && args[1] == "ack"
			err = a.Complete(ctx, args[0], ack)

		case "sync":
			err = a.Sync(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
