// Package transferguard embeds the transferguard engine in a Go process: document
// ingestion into the compliance knowledge store and ledger-backed transfer validation,
// without running the HTTP service.
//
// Documents and the vector index snapshot live in a KV store (in-process by default,
// Redis or Valkey on request). Accounts, beneficiaries and transactions live in a
// SQLite ledger.
//
//	client, _ := transferguard.New(ctx, transferguard.WithLedgerPath("./data/ledger.db"))
//	defer client.Close()
//
//	_, _ = client.Documents().Ingest(ctx, "policy", "./docs/policy.pdf", transferguard.DocumentRules)
//	_, _ = client.Documents().Ingest(ctx, "sanctions", "./docs/sanctions.md", transferguard.DocumentSanctions)
//
//	_ = client.Accounts().Create(ctx, transferguard.Account{ID: "acc-1", Balance: "5000", DailyLimit: "1000"})
//	tr, err := client.Transfers().Execute(ctx, "acc-1", "ben-1", "250.000")
//	if transferguard.IsBlocked(err) {
//	    fmt.Println("blocked:", tr.Reason)
//	}
package transferguard
