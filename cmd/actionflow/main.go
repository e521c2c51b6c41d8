// Actionflow CLI — инструмент командной строки для сервера Actionflow.
//
// Использование:
//
//	actionflow [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить все playable action
//	exec      Выполнить один action
//	status    Статусы action и Value Bag
//	graph     Граф зависимостей
//	reset     Сбросить выполнение action
//	set       Записать значения
//	unset     Удалить значения
//	language  Сменить язык промптов
//	cancel    Прервать выполнение
//	watch     События выполнения из RabbitMQ
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Actionflow/internal/cli"
	"github.com/shaiso/Actionflow/internal/config"
	"github.com/shaiso/Actionflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// Логи только для watch (RabbitMQ), в stderr.
	logger := telemetry.SetupLogger()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "actionflow",
		Short:         "Actionflow CLI — run AI app actions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", cfg.APIURL, "API server URL (env ACTIONFLOW_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewExecCmd(clientFn, outputFn),
		cli.NewStatusCmd(clientFn, outputFn),
		cli.NewGraphCmd(clientFn, outputFn),
		cli.NewResetCmd(clientFn, outputFn),
		cli.NewSetCmd(clientFn, outputFn),
		cli.NewUnsetCmd(clientFn, outputFn),
		cli.NewLanguageCmd(clientFn, outputFn),
		cli.NewCancelCmd(clientFn, outputFn),
		cli.NewWatchCmd(outputFn, logger),
	)

	// Ctrl+C завершает watch и прерывает ожидание run
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
