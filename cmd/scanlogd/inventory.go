package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"scanlogd/internal/config"
	"scanlogd/internal/logging"
	"scanlogd/internal/store"
)

// inventoryRequest is an operator query against the SQLite mirror.
type inventoryRequest struct {
	verify  bool
	rebuild bool
	item    string
	recent  int
}

func (r inventoryRequest) any() bool {
	return r.verify || r.rebuild || r.item != "" || r.recent > 0
}

// runInventory answers r from the store and prints the result to stdout.
// It never touches the input device.
func runInventory(cfg *config.Config, r inventoryRequest, stdout io.Writer) error {
	if cfg.Store.SQLitePath == "" {
		return usageError("Inventory queries need store.sqlite_path (or SCANLOGD_SQLITE_PATH) to be set.")
	}
	if _, err := os.Stat(cfg.Store.SQLitePath); err != nil {
		return &exitError{code: exitConfig, msg: fmt.Sprintf("inventory database %s: %v", cfg.Store.SQLitePath, err), err: err}
	}

	db, err := store.Open(cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if r.rebuild {
		if err := db.RebuildInventory(); err != nil {
			return err
		}
		n, err := db.Count()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "inventory rebuilt from %d transactions\n", n)
	}

	if r.verify {
		mismatches, err := db.VerifyInventory()
		if err != nil {
			return err
		}
		for _, m := range mismatches {
			fmt.Fprintf(stdout, "%s\tstored %d\thistory %d\n", m.Payload, m.Stored, m.Computed)
		}
		if len(mismatches) > 0 {
			return &exitError{code: 1, msg: fmt.Sprintf("%d inventory rows disagree with the transaction history; run with --rebuild-inventory", len(mismatches))}
		}
		fmt.Fprintln(stdout, "inventory consistent")
	}

	if r.item != "" {
		if err := printItem(db, r.item, stdout); err != nil {
			return err
		}
	}

	if r.recent > 0 {
		txs, err := db.Recent(r.recent)
		if err != nil {
			return err
		}
		total, err := db.Count()
		if err != nil {
			return err
		}
		for _, tx := range txs {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", tx.Time.Format(time.DateTime), tx.Payload, tx.Direction)
		}
		fmt.Fprintf(stdout, "%d of %d transactions\n", len(txs), total)
	}
	return nil
}

func printItem(db *store.Store, payload string, stdout io.Writer) error {
	qty, err := db.Quantity(payload)
	if err != nil {
		return err
	}
	item, err := db.Item(payload)
	if err != nil {
		return err
	}
	if item == nil {
		fmt.Fprintf(stdout, "%s\tnever scanned\n", payload)
		return nil
	}
	fmt.Fprintf(stdout, "%s\ton hand %d\tlast change %s\n", payload, qty, item.UpdatedAt.Format(time.DateTime))

	history, err := db.History(payload)
	if err != nil {
		return err
	}
	for _, tx := range history {
		fmt.Fprintf(stdout, "  %s\t%s\n", tx.Time.Format(time.DateTime), tx.Direction)
	}
	return nil
}

// checkInventory logs every count that drifted from the transaction history.
// Drift does not stop recording.
func checkInventory(db *store.Store, logger *logging.Logger) {
	mismatches, err := db.VerifyInventory()
	if err != nil {
		logger.Warn("inventory check failed", "error", err)
		return
	}
	for _, m := range mismatches {
		logger.Warn("inventory count disagrees with history",
			"payload", m.Payload,
			"stored", m.Stored,
			"history", m.Computed,
		)
	}
	if len(mismatches) > 0 {
		logger.Warn("inventory drift detected, run scanlogd --rebuild-inventory", "rows", len(mismatches))
	}
}

// checkSoundFile warns once at startup when the cue cannot be played.
// Recording continues either way.
func checkSoundFile(cfg *config.Config, logger *logging.Logger) {
	if cfg.Notify.SoundFile == "" {
		return
	}
	if _, err := os.Stat(cfg.Notify.SoundFile); err != nil {
		logger.Warn("sound cue file unavailable, scans will be recorded silently",
			"sound_file", cfg.Notify.SoundFile, "error", err)
	}
}
