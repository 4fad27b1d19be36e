// Command relations manages the OpenFGA store backing membership resolution
// and inspects or mutates membership tuples. With OpenFGA disabled the
// membership commands answer from the relational store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"labguard/internal/config"
	"labguard/internal/database"
	"labguard/internal/relations"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cfg := config.NewConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var cmdErr error
	switch os.Args[1] {
	case "list-stores", "create-store", "delete-store", "write-model", "read-model":
		cmdErr = runStoreCommand(ctx, logger, cfg, os.Args[1], os.Args[2:])
	case "check-member", "write-member", "delete-member":
		cmdErr = runMembershipCommand(ctx, logger, cfg, os.Args[1], os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func runStoreCommand(ctx context.Context, logger *slog.Logger, cfg *config.Config, command string, args []string) error {
	admin, err := relations.NewAdmin(logger, cfg.OpenFGA)
	if err != nil {
		return err
	}

	switch command {
	case "list-stores":
		return listStores(ctx, admin)
	case "create-store":
		return createStore(ctx, admin, args)
	case "delete-store":
		return admin.DeleteStore(ctx)
	case "write-model":
		return writeModel(ctx, admin)
	default:
		return readModel(ctx, admin, args)
	}
}

func runMembershipCommand(ctx context.Context, logger *slog.Logger, cfg *config.Config, command string, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: relations %s <user_id> <team|organization> <id>", command)
	}
	userID, objectType, objectID := args[0], args[1], args[2]
	if objectType != "team" && objectType != "organization" {
		return fmt.Errorf("unknown membership type %q, want team or organization", objectType)
	}

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database.ConnString()); err != nil {
		return err
	}
	defer db.Close()

	client, err := relations.NewClient(logger, cfg.OpenFGA, &db)
	if err != nil {
		return err
	}

	switch command {
	case "check-member":
		return checkMember(ctx, client, userID, objectType, objectID)
	case "write-member":
		if err := client.WriteMembership(ctx, userID, objectType, objectID); err != nil {
			return err
		}
		fmt.Printf("wrote %s member %s to %s\n", objectType, userID, objectID)
		return nil
	default:
		if err := client.DeleteMembership(ctx, userID, objectType, objectID); err != nil {
			return err
		}
		fmt.Printf("deleted %s member %s from %s\n", objectType, userID, objectID)
		return nil
	}
}

func checkMember(ctx context.Context, client *relations.Client, userID, objectType, objectID string) error {
	var (
		ok  bool
		err error
	)
	if objectType == "team" {
		ok, err = client.IsTeamMember(ctx, userID, objectID)
	} else {
		ok, err = client.IsOrganizationMember(ctx, userID, objectID)
	}
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("%s is a member of %s:%s\n", userID, objectType, objectID)
	} else {
		fmt.Printf("%s is not a member of %s:%s\n", userID, objectType, objectID)
	}
	return nil
}

func listStores(ctx context.Context, admin *relations.Admin) error {
	stores, err := admin.ListStores(ctx)
	if err != nil {
		return err
	}
	for _, store := range stores {
		fmt.Printf("%s\t%s\n", store.GetId(), store.GetName())
	}
	return nil
}

func createStore(ctx context.Context, admin *relations.Admin, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: relations create-store <name>")
	}
	id, err := admin.CreateStore(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("created store %s\n", id)
	return nil
}

func writeModel(ctx context.Context, admin *relations.Admin) error {
	id, err := admin.WriteModel(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("wrote authorization model %s\n", id)
	return nil
}

func readModel(ctx context.Context, admin *relations.Admin, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: relations read-model <model_id>")
	}
	model, err := admin.ReadModel(ctx, args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(model.GetTypeDefinitions(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("model %s (schema %s)\n%s\n", model.GetId(), model.GetSchemaVersion(), out)
	return nil
}

func printUsage() {
	fmt.Println("Usage: relations <command>")
	fmt.Println("Commands:")
	fmt.Println("  list-stores                                      List OpenFGA stores")
	fmt.Println("  create-store <name>                              Create a new store")
	fmt.Println("  delete-store                                     Delete the configured store")
	fmt.Println("  write-model                                      Write the membership authorization model")
	fmt.Println("  read-model <model_id>                            Print an authorization model")
	fmt.Println("  check-member <user_id> <team|organization> <id>  Check a membership")
	fmt.Println("  write-member <user_id> <team|organization> <id>  Record a membership tuple")
	fmt.Println("  delete-member <user_id> <team|organization> <id> Remove a membership tuple")
}
