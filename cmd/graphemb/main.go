// graphemb trains unsupervised node embeddings on a graph dataset and writes
// the resulting embedding table.
//
// The dataset folder must contain a graph.bin file, see the loader package.
// Hyperparameters are set with --set, e.g.:
//
//	graphemb --in=dataset/yelp --out=dataset/yelp/embeddings \
//	    --set="model=channel_gat;epochs=20;batch_size=64"
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/graphemb/graphemb"
	"github.com/graphemb/graphemb/loader"
)

var (
	flagInFolder  = flag.String("in", "", "Folder with the dataset to train on.")
	flagOutFolder = flag.String("out", "", "Folder to write the embedding table to, as <model>.bin.")
	flagVerbosity = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

func main() {
	ctx := graphemb.DefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	if *flagInFolder == "" || *flagOutFolder == "" {
		fmt.Fprintln(os.Stderr, "flags --in and --out are required")
		flag.Usage()
		os.Exit(1)
	}
	must.M1(commandline.ParseContextSettings(ctx, *settings))

	data := must.M1(loader.Load(*flagInFolder))
	backend := backends.MustNew()
	if *flagVerbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
		fmt.Printf("%s\n", data.Graph())
	}
	if *flagVerbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}

	model := must.M1(graphemb.New(backend, ctx, data))
	must.M(model.Train())
	table := must.M1(model.ExtractEmbeddings())

	must.M(os.MkdirAll(*flagOutFolder, 0777))
	outPath := filepath.Join(*flagOutFolder, table.Model+".bin")
	must.M(table.Save(outPath))
	fmt.Printf("Saved %d embeddings (dimension %d, run %s) to %q\n",
		len(table.NodeIDs), table.Dim, table.RunID, outPath)
}
