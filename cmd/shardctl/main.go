package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/botlabs-gg/dshardrelay/admin"
	"github.com/jedib0t/go-pretty/table"
	"github.com/mitchellh/cli"
)

var adminClient *admin.Client

func main() {
	serverAddr := os.Getenv("SHARDCTL_ADDR")
	if serverAddr == "" {
		serverAddr = "http://127.0.0.1:7448"
	}
	adminClient = admin.NewClient(serverAddr)

	app := cli.NewCLI("shardctl", "0.1")
	app.Args = os.Args[1:]

	app.Commands = map[string]cli.CommandFactory{
		"status":  StaticFactory(&StatusCmd{}),
		"restart": StaticFactory(&RestartCmd{}),
	}

	exitStatus, err := app.Run()
	if err != nil {
		fmt.Println("Error: ", err)
	}

	os.Exit(exitStatus)
}

func StaticFactory(cmd cli.Command) cli.CommandFactory {
	return func() (cli.Command, error) {
		return cmd, nil
	}
}

type StatusCmd struct{}

func (s *StatusCmd) Help() string {
	return s.Synopsis()
}

func (s *StatusCmd) Run(args []string) int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	status, err := adminClient.GetStatus(ctx)
	if err != nil {
		fmt.Println("Error: ", err)
		return 1
	}

	tb := table.NewWriter()
	tb.AppendHeader(table.Row{"shard", "generation", "state", "valid"})
	for _, s := range status.Shards {
		tb.AppendRow(table.Row{s.Shard, s.Generation, s.State, s.Valid})
	}

	fmt.Println(tb.Render())
	return 0
}

func (s *StatusCmd) Synopsis() string {
	return "display the state of every shard"
}

type RestartCmd struct{}

func (r *RestartCmd) Help() string {
	return "usage: restart shard-id [resume]\n\n" + r.Synopsis() + ", pass resume to keep the session"
}

func (r *RestartCmd) Run(args []string) int {
	if len(args) < 1 {
		fmt.Println(r.Help())
		return 1
	}

	shardID, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("invalid shard: ", err)
		return 1
	}

	resume := len(args) > 1 && args[1] == "resume"

	fmt.Printf("restarting shard %d (resume: %t)...\n", shardID, resume)
	msg, err := adminClient.RestartShard(context.Background(), shardID, resume)
	if err != nil {
		fmt.Println("Error: ", err)
		return 1
	}

	fmt.Println(msg)
	return 0
}

func (r *RestartCmd) Synopsis() string {
	return "restarts a shard and waits for the new connection"
}
