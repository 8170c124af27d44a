// ABOUTME: CLI commands for the sync engine
// ABOUTME: Human-friendly commands for inspecting mappings and running manual syncs
package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/christianwach/crmsync/content"
	"github.com/christianwach/crmsync/crm"
	"github.com/christianwach/crmsync/handlers"
	"github.com/christianwach/crmsync/mapping"
)

// Env bundles the open stores and the assembled engine for commands.
type Env struct {
	CRM     *crm.Store
	Content *content.SQLStore
	Config  *mapping.Config
	Engine  *handlers.Engine
	Log     zerolog.Logger
}

// MappingsCommand prints the loaded mapping configuration.
func MappingsCommand(env *Env, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "CONTENT TYPE\tMAPS TO")
	for _, et := range env.Config.EntityTypes {
		target := "contact:" + et.ContactType
		if et.ActivityType != "" {
			target = "activity:" + et.ActivityType
		}
		fmt.Fprintf(w, "%s\t%s\n", et.ContentType, target)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SELECTOR\tCONTENT TYPE\tKIND\tTARGET")
	for _, f := range env.Config.Fields {
		target := ""
		switch f.Kind {
		case mapping.KindScalar:
			target = f.CRMField
		case mapping.KindCustom:
			target = f.CustomKey()
		case mapping.KindRecord:
			target = string(f.Record) + ":" + f.Qualifier.Raw
		case mapping.KindRelationship:
			target = fmt.Sprintf("type %d (%s)", f.RelationshipTypeID, f.Direction)
		}
		readOnly := ""
		if f.ReadOnly {
			readOnly = " [read-only]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s%s\n", f.Selector, f.ContentType, f.Kind, target, readOnly)
	}

	return w.Flush()
}

// SyncContentCommand pushes content entities through the content-to-CRM
// pipeline. With --all every entity of mapped types is synced;
// otherwise the arguments are entity ids.
func SyncContentCommand(env *Env, args []string) error {
	fs := flag.NewFlagSet("sync content", flag.ExitOnError)
	all := fs.Bool("all", false, "Sync every entity of a mapped type")
	entityType := fs.String("type", "", "Restrict --all to one content type")
	_ = fs.Parse(args)

	ids := fs.Args()
	if *all {
		entities, err := content.ListEntities(env.Content.DB(), *entityType)
		if err != nil {
			return fmt.Errorf("failed to list entities: %w", err)
		}
		ids = ids[:0]
		for _, entity := range entities {
			if env.Config.ContactTypeFor(entity.EntityType) == "" &&
				env.Config.ActivityTypeFor(entity.EntityType) == "" {
				continue
			}
			ids = append(ids, entity.ID)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("nothing to sync: pass entity ids or --all")
	}

	synced := 0
	for _, id := range ids {
		if err := env.Engine.SyncEntityFromContent(id); err != nil {
			env.Log.Error().Err(err).Str("entity_id", id).Msg("entity sync failed")
			continue
		}
		synced++
	}

	fmt.Printf("Synced %d of %d entities\n", synced, len(ids))
	return nil
}

// SyncContactCommand pushes CRM contacts through the CRM-to-content
// pipeline. The arguments are contact ids.
func SyncContactCommand(env *Env, args []string) error {
	fs := flag.NewFlagSet("sync contact", flag.ExitOnError)
	_ = fs.Parse(args)

	if len(fs.Args()) == 0 {
		return fmt.Errorf("pass at least one contact id")
	}

	synced := 0
	for _, arg := range fs.Args() {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid contact id %q", arg)
		}
		if err := env.Engine.SyncContactFromCRM(id); err != nil {
			env.Log.Error().Err(err).Int("contact_id", id).Msg("contact sync failed")
			continue
		}
		synced++
	}

	fmt.Printf("Synced %d of %d contacts\n", synced, len(fs.Args()))
	return nil
}

// LogCommand prints the most recent CRM write-audit entries.
func LogCommand(env *Env, args []string) error {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Max entries")
	_ = fs.Parse(args)

	entries, err := crm.GetSyncLog(env.CRM.DB(), *limit)
	if err != nil {
		return fmt.Errorf("failed to read sync log: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOP\tOBJECT\tOBJECT ID\tLOGGED AT")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			entry.ID, entry.Op, entry.ObjectName, entry.ObjectID,
			entry.LoggedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
