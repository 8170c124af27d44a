// ABOUTME: Entry point for the crmsync CLI
// ABOUTME: Routes to mapping inspection and manual sync commands
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/christianwach/crmsync/cli"
	"github.com/christianwach/crmsync/content"
	"github.com/christianwach/crmsync/crm"
	"github.com/christianwach/crmsync/handlers"
	"github.com/christianwach/crmsync/mapping"
)

const version = "0.1.0"

func main() {
	// A .env in the working directory can supply the path settings.
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Show version and exit")
	crmDBPath := flag.String("crm-db", envOr("CRMSYNC_CRM_DB", ""), "CRM database path (default: ~/.local/share/crmsync/crm.db)")
	contentDBPath := flag.String("content-db", envOr("CRMSYNC_CONTENT_DB", ""), "Content database path (default: ~/.local/share/crmsync/content.db)")
	configPath := flag.String("config", envOr("CRMSYNC_CONFIG", ""), "Mapping config path (default: ~/.config/crmsync/mappings.yaml)")
	initOnly := flag.Bool("init", false, "Initialize databases and exit")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("crmsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 && !*initOnly {
		printUsage()
		os.Exit(0)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	crmDB, err := crm.OpenDatabase(defaultPath(*crmDBPath, "crm.db"))
	if err != nil {
		log.Fatalf("Failed to open CRM database: %v", err)
	}
	defer crmDB.Close()

	contentDB, err := content.OpenDatabase(defaultPath(*contentDBPath, "content.db"))
	if err != nil {
		log.Fatalf("Failed to open content database: %v", err)
	}
	defer contentDB.Close()

	if *initOnly {
		log.Println("Databases initialized successfully")
		os.Exit(0)
	}

	cfg, err := mapping.Load(defaultConfigPath(*configPath))
	if err != nil {
		log.Fatalf("Failed to load mapping config: %v", err)
	}

	crmStore := crm.NewStore(crmDB)
	contentStore := content.NewStore(contentDB)
	engine := handlers.NewEngine(crmStore, contentStore, cfg, logger)

	env := &cli.Env{
		CRM:     crmStore,
		Content: contentStore,
		Config:  cfg,
		Engine:  engine,
		Log:     logger,
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "mappings":
		if err := cli.MappingsCommand(env, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "sync":
		if len(commandArgs) == 0 {
			fmt.Println("Error: sync requires a subcommand (content or contact)")
			printUsage()
			os.Exit(1)
		}
		switch commandArgs[0] {
		case "content":
			if err := cli.SyncContentCommand(env, commandArgs[1:]); err != nil {
				log.Fatalf("Error: %v", err)
			}
		case "contact":
			if err := cli.SyncContactCommand(env, commandArgs[1:]); err != nil {
				log.Fatalf("Error: %v", err)
			}
		default:
			fmt.Printf("Unknown sync target: %s\n\n", commandArgs[0])
			printUsage()
			os.Exit(1)
		}

	case "log":
		if err := cli.LogCommand(env, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultPath(path, name string) string {
	if path != "" {
		return path
	}
	return filepath.Join(xdg.DataHome, "crmsync", name)
}

func defaultConfigPath(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(xdg.ConfigHome, "crmsync", "mappings.yaml")
}

func printUsage() {
	fmt.Printf(`crmsync v%s - Bidirectional content/CRM field sync

USAGE:
  crmsync [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --crm-db <path>        CRM database path (default: ~/.local/share/crmsync/crm.db)
  --content-db <path>    Content database path (default: ~/.local/share/crmsync/content.db)
  --config <path>        Mapping config path (default: ~/.config/crmsync/mappings.yaml)
  --init                 Initialize databases and exit

COMMANDS:
  crmsync mappings              Print the loaded mapping configuration

  crmsync sync content [ids]    Push content entities to the CRM
    --all                         Sync every entity of a mapped type
    --type <type>                 Restrict --all to one content type

  crmsync sync contact <ids>    Push CRM contacts to the content store

  crmsync log                   Show recent CRM write-audit entries
    --limit <n>                   Max entries (default: 50)

EXAMPLES:
  # Inspect what is mapped
  crmsync mappings

  # Sync one post and one user entity to the CRM
  crmsync sync content 12 user_3

  # Sync every mapped entity
  crmsync sync content --all

  # Mirror contact 7 into the content store
  crmsync sync contact 7

`, version)
}
