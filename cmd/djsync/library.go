package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/library"
	"github.com/franz/djsync/internal/merge"
	"github.com/franz/djsync/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Maintain the Rekordbox XML catalog",
}

var datePathsCmd = &cobra.Command{
	Use:   "date-paths",
	Short: "Print where each track lives in the date-organized library",
	Long: `Print one "source->destination" line per track. Destinations follow
<output>/YYYY/MM month/DD[/Artist/Album]/file, built from each track's
DateAdded.`,
	RunE: runDatePaths,
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge two catalogs, newer attributes winning",
	RunE:  runMerge,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Add the audio files of a directory to the catalog",
	Long: `Walk a music directory and record every audio file in the catalog.
Known files keep their TrackID and DateAdded and get refreshed tags. New files
are dated today and added to the _pruned playlist.`,
	RunE: runRecord,
}

var dynamicCmd = &cobra.Command{
	Use:   "dynamic",
	Short: "Rebuild the played and unplayed playlists",
	RunE:  runDynamic,
}

func init() {
	datePathsCmd.Flags().StringP("input", "i", "", "Rekordbox XML collection (required)")
	datePathsCmd.Flags().StringP("output", "o", "", "root of the date-organized library (required)")
	datePathsCmd.Flags().String("playlist", "", "only tracks of this playlist")
	datePathsCmd.Flags().Bool("metadata", false, "add Artist/Album directories below the date")

	mergeCmd.Flags().String("primary", "", "primary collection (required)")
	mergeCmd.Flags().String("secondary", "", "secondary collection (required)")
	mergeCmd.Flags().StringP("output", "o", "", "merged collection (required)")

	recordCmd.Flags().StringP("input", "i", "", "music directory to record (required)")
	recordCmd.Flags().StringP("collection", "c", "", "collection to update; created from the template if missing (required)")
	recordCmd.Flags().StringP("output", "o", "", "where to write the result (default: --collection)")
	recordCmd.Flags().String("template", "", "template collection for a new catalog")

	dynamicCmd.Flags().StringP("input", "i", "", "Rekordbox XML collection (required)")
	dynamicCmd.Flags().StringP("output", "o", "", "collection to write (required)")
	dynamicCmd.Flags().String("template", "", "template collection providing the playlist tree")

	libraryCmd.AddCommand(datePathsCmd, mergeCmd, recordCmd, dynamicCmd)
	rootCmd.AddCommand(libraryCmd)
}

func requireFlags(cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		if v, _ := cmd.Flags().GetString(name); v == "" {
			return util.Usagef("--%s is required", name)
		}
	}
	return nil
}

func runDatePaths(cmd *cobra.Command, args []string) error {
	if err := requireFlags(cmd, "input", "output"); err != nil {
		return err
	}
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	only, _ := cmd.Flags().GetString("playlist")
	withMetadata, _ := cmd.Flags().GetBool("metadata")
	root := viper.GetString("rekordbox_root")

	cat, err := collection.Load(input)
	if err != nil {
		return err
	}
	mappings, err := library.GenerateDatePaths(cat, output, library.DatePathOptions{
		LocationRoot:    root,
		IncludeMetadata: withMetadata,
	})
	if err != nil {
		return err
	}
	if only != "" {
		if mappings, err = library.FilterPathMappings(mappings, cat, only, root); err != nil {
			return err
		}
	}
	if len(mappings) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), library.FormatMappings(mappings))
	}
	return nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	if err := requireFlags(cmd, "primary", "secondary", "output"); err != nil {
		return err
	}
	primaryPath, _ := cmd.Flags().GetString("primary")
	secondaryPath, _ := cmd.Flags().GetString("secondary")
	output, _ := cmd.Flags().GetString("output")

	primary, err := collection.Load(primaryPath)
	if err != nil {
		return err
	}
	secondary, err := collection.Load(secondaryPath)
	if err != nil {
		return err
	}

	result, err := merge.Merge(primary, secondary)
	if err != nil {
		return err
	}
	if err := result.Catalog.Write(output); err != nil {
		return err
	}

	pruned := 0
	if node, err := result.Catalog.FindPlaylist(collection.NodePruned); err == nil {
		pruned = len(node.Keys())
	}
	tracks := len(result.Catalog.Collection.Tracks)

	logger := newEventLogger()
	defer logger.Close()
	logger.LogMerge(primaryPath, secondaryPath, output, tracks, pruned)

	if len(result.Reassigned) > 0 {
		util.InfoLog("Reassigned %d colliding TrackIDs", len(result.Reassigned))
	}
	util.SuccessLog("Merged %s tracks (%s pruned) into %s",
		humanize.Comma(int64(tracks)), humanize.Comma(int64(pruned)), output)
	return nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	if err := requireFlags(cmd, "input", "collection"); err != nil {
		return err
	}
	input, _ := cmd.Flags().GetString("input")
	collectionPath, _ := cmd.Flags().GetString("collection")
	output, _ := cmd.Flags().GetString("output")
	template, _ := cmd.Flags().GetString("template")
	if output == "" {
		output = collectionPath
	}

	cat, err := collection.LoadOrTemplate(collectionPath, template)
	if err != nil {
		return err
	}

	logger := newEventLogger()
	defer logger.Close()

	ctx, stop := signalContext()
	defer stop()

	recorder := library.NewRecorder(&library.RecorderConfig{
		LocationRoot: viper.GetString("rekordbox_root"),
		Logger:       logger,
	})
	result, err := recorder.Record(ctx, input, cat)
	if err != nil {
		return err
	}
	if err := cat.Write(output); err != nil {
		return err
	}

	util.SuccessLog("Recorded %s: %d added, %d updated, %d skipped",
		input, result.Added, result.Updated, result.Skipped)
	return nil
}

func runDynamic(cmd *cobra.Command, args []string) error {
	if err := requireFlags(cmd, "input", "output"); err != nil {
		return err
	}
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	template, _ := cmd.Flags().GetString("template")

	cat, err := collection.Load(input)
	if err != nil {
		return err
	}

	base := collection.Template()
	if template != "" {
		if base, err = collection.Load(template); err != nil {
			return err
		}
	}
	if err := library.RecordDynamic(cat, base); err != nil {
		return err
	}
	if err := base.Write(output); err != nil {
		return err
	}
	util.SuccessLog("Wrote dynamic playlists to %s", output)
	return nil
}
