// Package exporter generates the operator-facing report files: CSV dumps
// of calibrated parameters, the significance table and observation
// history, plus a combined analysis workbook. All text output is UTF-8
// with a BOM so spreadsheets render Korean keywords correctly.
package exporter
