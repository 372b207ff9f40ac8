package repo

const tableColumnsQuery = `SELECT column_name FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1`

// RELATED TABLES kept consistent with their parent payload
const selectProductBarcodesSQL = `SELECT barcode FROM productbarcodes WHERE productid = $1`

const insertProductBarcodeSQL = `
INSERT INTO productbarcodes (productid, barcode) VALUES ($1, $2)
ON CONFLICT (productid, barcode) DO NOTHING`

const deleteProductBarcodeSQL = `DELETE FROM productbarcodes WHERE productid = $1 AND barcode = $2`

const deleteBillItemsSQL = `DELETE FROM billitems WHERE billid = $1`

const deleteUserStoresSQL = `DELETE FROM userstores WHERE userid = $1`

// AUDIT FEED (sync_table)
const insertAuditQuery = `
INSERT INTO sync_table (
  table_name, record_id, operation_type, change_data, source, status, sync_attempts, created_at, synced_at
) VALUES ($1, $2, $3, ($4)::jsonb, $5, $6, 0, now(), now())
RETURNING id
`

// Rows worth applying locally: changes produced on the server side that are
// still pending, plus changes other replicas have already confirmed.
const pullBatchSQL = `
SELECT id, table_name, record_id, operation_type, change_data, source, status,
       COALESCE(error_message, ''), sync_attempts, created_at, synced_at
FROM sync_table
WHERE id > $1
  AND created_at >= $2
  AND ((source = 'remote' AND status = 'pending')
    OR (source = 'local' AND status = 'synced'))
ORDER BY id ASC
LIMIT $3
`

const markAuditSyncedSQL = `
UPDATE sync_table
SET status = 'synced', synced_at = now()
WHERE id = ANY($1) AND source = 'remote'`

const markAuditFailedSQL = `
UPDATE sync_table
SET status = 'failed', error_message = $2, sync_attempts = sync_attempts + 1
WHERE id = $1`

const cleanupAuditSQL = `
DELETE FROM sync_table
WHERE created_at < $1 AND status = 'synced'`
