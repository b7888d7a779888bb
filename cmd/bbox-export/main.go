package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/medveriground/bbox-annotator/internal/bootstrap"
	"github.com/medveriground/bbox-annotator/internal/config"
	"github.com/medveriground/bbox-annotator/internal/utils"
	"github.com/medveriground/bbox-annotator/pkg/export"
	"github.com/medveriground/bbox-annotator/pkg/store"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

func main() {
	var cfgPath, remote, outDir, name string

	flag.StringVar(&cfgPath, "config", config.GetConfigPath(), "config file (JSON); missing is fine")
	flag.StringVar(&remote, "remote", "", "comma separated annotator ids to fetch from the remote repository")
	flag.StringVar(&outDir, "out", "export", "output directory")
	flag.StringVar(&name, "name", "merged", "base name of the output files")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 && remote == "" {
		log.Fatalf("usage: %s [-remote id1,id2] [-out dir] annotations_a.json ...", filepath.Base(os.Args[0]))
	}

	var merged []types.Record
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatal(err)
		}
		records, err := store.Decode(data)
		if err != nil {
			log.Fatalf("%s: %v", f, err)
		}
		merged = store.Merge(merged, records)
		fmt.Printf("%-40s %d records\n", f, len(records))
	}

	if remote != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if !cfg.Remote.Enabled() {
			log.Fatal("-remote needs GITHUB_TOKEN and GITHUB_REPO")
		}
		ctx := context.Background()
		container, err := bootstrap.New(ctx, cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer container.Close()

		for _, id := range strings.Split(remote, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			records, err := container.Remote.Load(ctx, id)
			if err != nil {
				log.Fatalf("%s: %v", id, err)
			}
			merged = store.Merge(merged, records)
			fmt.Printf("%-40s %d records\n", container.Remote.Path(id), len(records))
		}
	}

	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal(err)
	}

	data, err := store.Encode(merged)
	if err != nil {
		log.Fatal(err)
	}
	jsonPath := filepath.Join(outDir, utils.SanitizeFilename(name)+".json")
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		log.Fatal(err)
	}

	xlsx, err := export.XLSX(merged)
	if err != nil {
		log.Fatal(err)
	}
	xlsxPath := filepath.Join(outDir, utils.SanitizeFilename(name)+".xlsx")
	if err := os.WriteFile(xlsxPath, xlsx, 0o644); err != nil {
		log.Fatal(err)
	}

	printStats(export.Summarize(merged))
	color.Green("wrote %s and %s", jsonPath, xlsxPath)
}

func printStats(st export.Stats) {
	color.Cyan("\n%d records from %d annotators, %.1fs mean per decision", st.Total, st.Annotators, st.MeanSeconds)
	for _, d := range types.Decisions() {
		fmt.Printf("  %-22s %d\n", d, st.Decisions[d])
	}
	for _, t := range []types.Tier{types.TierTight, types.TierAnatomical, types.TierNoGrounding, types.TierRejected} {
		fmt.Printf("  %-22s %d\n", t, st.Tiers[t])
	}
	if st.Flagged > 0 {
		color.Yellow("  %d flagged for review", st.Flagged)
	}
	reasons := make([]string, 0, len(st.Reasons))
	for r := range st.Reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("  reject: %-30s %d\n", r, st.Reasons[r])
	}
}
