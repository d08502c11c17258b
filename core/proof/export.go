package proof

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"mpccoordinator/crypto"
)

type parquetRecord struct {
	Position         int64  `parquet:"name=position, type=INT64"`
	RequestID        string `parquet:"name=request_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Requester        string `parquet:"name=requester, type=BYTE_ARRAY, convertedtype=UTF8"`
	RequesterAddress string `parquet:"name=requester_address, type=BYTE_ARRAY, convertedtype=UTF8"`
	DatasetIDs       string `parquet:"name=dataset_ids, type=BYTE_ARRAY, convertedtype=UTF8"`
	OracleHash       string `parquet:"name=oracle_response_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	PriorHash        string `parquet:"name=prior_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	GuaranteeLabels  string `parquet:"name=guarantee_labels, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp        string `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportAudit writes records to path as a columnar parquet file, grounded
// on the otc-gateway reconciler's writer.NewParquetWriter usage. Intended
// for bulk compliance export of the proof chain (§4.7: "queryable").
func ExportAudit(path string, records []*Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("proof: create export file: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRecord), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("proof: parquet schema: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range records {
		row := &parquetRecord{
			Position:         int64(r.Position),
			RequestID:        r.RequestID,
			Requester:        r.Requester,
			RequesterAddress: crypto.PartyAddress(r.Requester).String(),
			DatasetIDs:       strings.Join(r.DatasetIDs, ","),
			OracleHash:       hex.EncodeToString(r.OracleResponseHash[:]),
			PriorHash:        hex.EncodeToString(r.PriorHash[:]),
			GuaranteeLabels:  strings.Join(r.GuaranteeLabels, ","),
			Timestamp:        r.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("proof: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("proof: parquet flush: %w", err)
	}
	return file.Close()
}
