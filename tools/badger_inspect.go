package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"

	"community-hub/domain"
)

func main() {
	dbPath := flag.String("db", "/tmp/community-hub/badger", "Path to badger DB")
	// Par défaut on cherche "msg:" pour éviter de percuter les comptes user:
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Community", "Timestamp", "Author ID", "Author", "Text", "Images"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			// Sécurité : on ignore explicitement les comptes, leur hash ne sort jamais d'ici
			if strings.HasPrefix(string(item.Key()), "user:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				var m domain.Message
				if err := json.Unmarshal(v, &m); err != nil {
					// Au lieu de stopper tout le script, on log l'erreur et on continue
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				images := ""
				if len(m.Images) > 0 {
					images = fmt.Sprintf("%d image(s)", len(m.Images))
				}

				// On affiche les 8 premiers caractères de l'AuthorID pour la lisibilité
				displayID := m.AuthorID
				if len(displayID) > 8 {
					displayID = displayID[:8]
				}

				rawKey := string(item.Key())

				table.Append([]string{
					rawKey,
					string(m.CommunityID),
					m.CreatedAt.Format("15:04:05"),
					displayID,
					m.DisplayName,
					m.Text,
					images,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// Si corruption détectée, essaie un open en write pour truncate
		if strings.Contains(err.Error(), "Log truncate required") {
			fmt.Println("⚠️  Log truncate required, reopening once in write mode")

			// Open en mode write pour permettre le truncate
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			// Ferme et réouvre en read-only
			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
