// Command gamequery is a minimal CLI wrapper exercising the query facade:
// point it at a Source server and it prints the A2S_INFO response, or at
// an RCON endpoint to run one command. Both are external collaborators
// around the core async engine, not part of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/k64z/gamequery/query"
)

func main() {
	var (
		addr    = flag.String("addr", "", "Source server address, host:port")
		rconPwd = flag.String("rcon-password", "", "RCON password; if set, runs -rcon-command instead of an A2S_INFO query")
		rconCmd = flag.String("rcon-command", "status", "RCON command to run when -rcon-password is set")
		timeout = flag.Duration("timeout", 5*time.Second, "request timeout")
	)
	flag.Parse()

	if *addr == "" {
		log.Fatal("main: -addr is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *rconPwd != "" {
		if err := runRCON(ctx, *addr, *rconPwd, *rconCmd, logger); err != nil {
			log.Fatalf("main: %v", err)
		}
		return
	}

	if err := runInfo(ctx, *addr, logger); err != nil {
		log.Fatalf("main: %v", err)
	}
}

func runInfo(ctx context.Context, addr string, logger *slog.Logger) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}

	c, err := query.New(query.WithLogger(logger))
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.QueryInfo(ctx, udpAddr)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s) — map %s, %d/%d players\n", resp.Name, resp.Game, resp.Map, resp.Players, resp.MaxPlayers)
	if resp.HasSteamID {
		fmt.Printf("steamid: %s\n", resp.SteamID)
	}
	return nil
}

func runRCON(ctx context.Context, addr, password, command string, logger *slog.Logger) error {
	c, err := query.New(query.WithLogger(logger))
	if err != nil {
		return err
	}
	defer c.Close()

	conn, err := c.DialRCON(ctx, addr, password)
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := conn.Command(ctx, command)
	if err != nil {
		return err
	}

	fmt.Println(reply)
	return nil
}
