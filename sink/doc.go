// Package sink contains destinations for harvested records.
package sink
