package shared

// StockRebuildAdvisoryKey is the Postgres advisory lock key guarding the
// stock balance rebuild. It serialises rebuilds against each other; live
// postings keep running and are caught by the rebuild's ledger checksum.
const StockRebuildAdvisoryKey int64 = 0x53544f434b_01
