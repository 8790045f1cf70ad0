// Command mdsd runs the metadata-core daemon for one MDS rank.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maesker/mdscore/pkg/inoalloc"
	"github.com/maesker/mdscore/pkg/mdconfig"
	"github.com/maesker/mdscore/pkg/mds"
	"github.com/maesker/mdscore/pkg/objstore"
	"github.com/maesker/mdscore/pkg/ownership"
	"github.com/maesker/mdscore/pkg/partition"
	"github.com/maesker/mdscore/pkg/storeabs"
)

func init() {
	if glog.V(0) { // mention glog so it defines its flags before we change them
		if err := flag.CommandLine.Set("logtostderr", "true"); err != nil {
			log.Printf("failed changing glog default destination: %s", err)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "mdsd",
	Short: "mdsd runs one rank of the metadata core of a distributed parallel file system",
	RunE:  run,
}

func main() {
	if err := mdconfig.BindFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "mdsd: %v\n", err)
		os.Exit(1)
	}
	// cobra owns argv; glog's flags were registered on flag.CommandLine above, so fold them
	// in as hidden cobra flags rather than parsing flag.CommandLine separately.
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mdsd: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := mdconfig.Load()
	if err != nil {
		return err
	}
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one --devices entry is required")
	}
	if cfg.LocalHostID == "" {
		cfg.LocalHostID = uuid.NewString()
	}

	devices := make([]objstore.Device, 0, len(cfg.Devices))
	for i, root := range cfg.Devices {
		id := fmt.Sprintf("dev%d", i)
		dev, err := objstore.NewDirDevice(root, id)
		if err != nil {
			return fmt.Errorf("mounting device %q: %w", root, err)
		}
		devices = append(devices, dev)
	}

	mgr, err := partition.NewManager(cfg.LocalHostID, devices)
	if err != nil {
		return fmt.Errorf("constructing partition manager: %w", err)
	}
	claimed := mgr.RecalculateOwnerships(uint64(cfg.Rank), uint64(cfg.TotalHosts))
	for _, id := range claimed {
		glog.Infof("mdsd: claimed ownership of partition %s", id)
	}

	var store storeabs.Store
	if cfg.PartitionMode {
		store = storeabs.NewPartitionStore(mgr)
	} else {
		store = storeabs.NewFileStore(devices[0])
	}

	dist, err := inoalloc.NewFromDevices(devices, devices[0], cfg.Rank)
	if err != nil {
		return fmt.Errorf("constructing inode-number distributor: %w", err)
	}

	owner := ownership.New(ownership.HostID(cfg.LocalHostID), mgr)
	svc := mds.New(store, mgr, dist, owner)
	svc.SetWorkerPoolSize(cfg.WorkerThreads)

	go func() {
		if err := mds.ServeMetrics(cfg.MetricsAddr); err != nil {
			glog.Errorf("mdsd: metrics endpoint stopped: %+v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			mds.ObservePartitions(mgr)
		}
	}()

	glog.Infof("mdsd: rank %d of %d starting on %s, host id %s", cfg.Rank, cfg.TotalHosts, cfg.ListenAddr, cfg.LocalHostID)
	return mds.ListenTCP(svc, cfg.ListenAddr)
}
