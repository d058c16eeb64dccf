// Command autotier is the ad hoc control client for autotierfs, sending
// commands over the Unix domain socket the daemon opens at mount time.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/autotier/autotier/internal/control"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	socketPath := os.Getenv("AUTOTIER_SOCKET")
	args := os.Args[1:]
	if len(args) >= 2 && args[0] == "-socket" {
		socketPath = args[1]
		args = args[2:]
	}
	if socketPath == "" {
		fmt.Fprintln(os.Stderr, "autotier: no socket given; pass -socket <path> or set AUTOTIER_SOCKET")
		os.Exit(2)
	}
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "oneshot":
		err = runSimple(socketPath, control.Request{Command: "oneshot"})
	case "status":
		err = runStatus(socketPath)
	case "whichtier":
		err = runPathCommand(socketPath, "whichtier", args[1:], true)
	case "pin":
		err = runPinCommand(socketPath, args[1:])
	case "unpin":
		err = runPathCommand(socketPath, "unpin", args[1:], false)
	case "list-pins":
		err = runListPins(socketPath)
	case "help", "-h", "-help", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "autotier: unknown command %q\n", args[0])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "autotier:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: autotier [-socket <path>] <command> [args]

commands:
  oneshot              trigger an immediate tiering pass
  status               print capacity and health for every tier
  whichtier <path>     print which tier currently holds path
  pin <path> <tier>    pin path to tier (see status for tier IDs)
  unpin <path>         unpin path
  list-pins            list every currently pinned path

-socket defaults to $AUTOTIER_SOCKET when not given.`)
}

func send(socketPath string, req control.Request) (control.Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return control.Response{}, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return control.Response{}, fmt.Errorf("sending request: %w", err)
	}

	var resp control.Response
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return control.Response{}, fmt.Errorf("reading response: %w", err)
		}
		return control.Response{}, fmt.Errorf("connection closed before a response arrived")
	}
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return control.Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return resp, nil
}

func runSimple(socketPath string, req control.Request) error {
	resp, err := send(socketPath, req)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Println("ok")
	return nil
}

func runPinCommand(socketPath string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("pin requires a path and a tier argument")
	}
	resp, err := send(socketPath, control.Request{Command: "pin", Path: args[0], Tier: args[1]})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Println("ok")
	return nil
}

func runPathCommand(socketPath, command string, args []string, printTier bool) error {
	if len(args) != 1 {
		return fmt.Errorf("%s requires exactly one path argument", command)
	}
	resp, err := send(socketPath, control.Request{Command: command, Path: args[0]})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Error)
	}
	if printTier {
		fmt.Println(resp.Tier)
	} else {
		fmt.Println("ok")
	}
	return nil
}

func runStatus(socketPath string) error {
	resp, err := send(socketPath, control.Request{Command: "status"})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Error)
	}
	for _, t := range resp.Tiers {
		fmt.Printf("%-12s %-30s watermark=%3d%% used=%d/%d (%.1f%%) health=%s\n",
			t.ID, t.Path, t.Watermark, t.UsedBytes, t.CapacityBytes, t.UsageRatio*100, t.Health)
	}
	return nil
}

func runListPins(socketPath string) error {
	resp, err := send(socketPath, control.Request{Command: "list-pins"})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Error)
	}
	for _, p := range resp.Pins {
		fmt.Println(p)
	}
	return nil
}
