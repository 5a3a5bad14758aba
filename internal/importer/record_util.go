package importer

import (
	"strings"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
)

// sourceID returns the "id" field of rec as a string, or "" if unset.
func sourceID(rec bulkclient.Record) string {
	id, _ := rec["id"].(string)
	return id
}

// cloneWithout returns a copy of rec with the named fields removed.
func cloneWithout(rec bulkclient.Record, fields ...string) bulkclient.Record {
	drop := make(map[string]bool, len(fields))
	for _, f := range fields {
		drop[f] = true
	}
	cp := make(bulkclient.Record, len(rec))
	for k, v := range rec {
		if drop[k] {
			continue
		}
		cp[k] = v
	}
	return cp
}

// cloneOnly returns a copy of rec containing only the named fields
// (plus "id", always kept). Phase C builds its update payloads
// itself and does not call it.
func cloneOnly(rec bulkclient.Record, fields ...string) bulkclient.Record {
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	cp := bulkclient.Record{"id": rec["id"]}
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			cp[f] = v
		}
	}
	return cp
}

// dropFieldsForMode returns a copy of records keeping only "id" plus
// whichever fields the target reports valid for the current write
// mode, per §4.9 ("fields excluded for the current mode are dropped
// before write"). Fields absent from meta (already reported or
// stripped by the caller) are dropped silently.
func dropFieldsForMode(records []bulkclient.Record, meta map[string]bulkclient.FieldMetadata, mode Mode) []bulkclient.Record {
	out := make([]bulkclient.Record, len(records))
	for i, rec := range records {
		cp := make(bulkclient.Record, len(rec))
		for field, v := range rec {
			if field == "id" {
				cp[field] = v
				continue
			}
			fm, ok := meta[strings.ToLower(field)]
			if !ok {
				continue
			}
			switch mode {
			case ModeCreate:
				if fm.ValidForCreate {
					cp[field] = v
				}
			case ModeUpdate:
				if fm.ValidForUpdate {
					cp[field] = v
				}
			default:
				if fm.ValidForCreate || fm.ValidForUpdate {
					cp[field] = v
				}
			}
		}
		out[i] = cp
	}
	return out
}
