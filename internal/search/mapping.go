package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve mapping for beacon documents.
// location is a geopoint so geo-distance queries work; expiry is numeric so
// "still active" is a range filter.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = simple.Name
	titleFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	typeFieldMapping := bleve.NewKeywordFieldMapping()
	typeFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("type", typeFieldMapping)

	groupFieldMapping := bleve.NewKeywordFieldMapping()
	groupFieldMapping.Analyzer = keyword.Name
	groupFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("group_id", groupFieldMapping)

	locationFieldMapping := bleve.NewGeoPointFieldMapping()
	locationFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("location", locationFieldMapping)

	startsFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("starts_at", startsFieldMapping)

	expiresFieldMapping := bleve.NewNumericFieldMapping()
	expiresFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("expires_at", expiresFieldMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
