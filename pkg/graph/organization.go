package graph

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

const upsertOrganizationCypher = `
	MERGE (o:Organization {id: $id})
	SET o = $props
	WITH o
	UNWIND $edges AS edge
	MERGE (a:Organization {id: edge.acquirer_id})
	MERGE (t:Organization {id: edge.acquired_id})
	MERGE (a)-[r:ACQUIRED]->(t)
	SET r.date = edge.date, r.note = edge.note
`

const deleteOrganizationCypher = `
	MATCH (o:Organization {id: $id})
	SET o.deleted_at = $deleted_at
`

// OrganizationService mirrors crosswalk records as Organization nodes with
// ACQUIRED edges between acquirer and acquired
type OrganizationService struct {
	client *Client
	logger ectologger.Logger
}

// NewOrganizationService creates a new organization service
func NewOrganizationService(client *Client, logger ectologger.Logger) *OrganizationService {
	return &OrganizationService{
		client: client,
		logger: logger,
	}
}

// Upsert writes the record's node and its acquisition edges
func (s *OrganizationService) Upsert(ctx context.Context, rec *models.CrosswalkRecord) error {
	ctx, span := tracing.StartSpan(ctx, "graph.OrganizationService.Upsert")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{"canonical_id": rec.CanonicalID})

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, upsertOrganizationCypher, map[string]any{
			"id":    rec.CanonicalID,
			"props": NodeProps(rec),
			"edges": AcquisitionEdges(rec),
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		log.WithError(err).Error("Failed to upsert organization in graph")
		return fmt.Errorf("failed to upsert organization in graph: %w", err)
	}

	log.Debug("Upserted organization in graph")
	return nil
}

// Delete soft-deletes a node so ACQUIRED edges into it survive
func (s *OrganizationService) Delete(ctx context.Context, canonicalID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.OrganizationService.Delete")
	defer span.End()

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, deleteOrganizationCypher, map[string]any{
			"id":         canonicalID,
			"deleted_at": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete organization in graph")
		return fmt.Errorf("failed to delete organization in graph: %w", err)
	}
	return nil
}

// Acquirers returns the ids of organizations with an ACQUIRED edge into canonicalID
func (s *OrganizationService) Acquirers(ctx context.Context, canonicalID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.OrganizationService.Acquirers")
	defer span.End()

	res, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (a:Organization)-[:ACQUIRED]->(o:Organization {id: $id})
			RETURN a.id AS id
			ORDER BY id
		`, map[string]any{"id": canonicalID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for result.Next(ctx) {
			if id, ok := result.Record().Get("id"); ok {
				if str, ok := id.(string); ok {
					ids = append(ids, str)
				}
			}
		}
		return ids, result.Err()
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read acquirers from graph")
		return nil, fmt.Errorf("failed to read acquirers from graph: %w", err)
	}
	ids, _ := res.([]string)
	return ids, nil
}

// NodeProps flattens a record into Bolt-safe node properties
func NodeProps(rec *models.CrosswalkRecord) map[string]any {
	aliases := make([]string, 0, len(rec.Aliases))
	for _, a := range rec.Aliases {
		aliases = append(aliases, a.Name)
	}

	props := map[string]any{
		"id":         rec.CanonicalID,
		"name":       rec.CanonicalName,
		"aliases":    aliases,
		"created_at": rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	for key, value := range map[string]string{"uei": rec.UEI, "cage": rec.CAGE, "duns": rec.DUNS} {
		if value != "" {
			props[key] = value
		}
	}
	return props
}

// AcquisitionEdges reads both directions of acquisition lineage from metadata
func AcquisitionEdges(rec *models.CrosswalkRecord) []map[string]any {
	var edges []map[string]any
	add := func(acquirer, acquired string, entry map[string]any) {
		if acquirer == "" || acquired == "" {
			return
		}
		date, _ := entry["date"].(string)
		note, _ := entry["note"].(string)
		edges = append(edges, map[string]any{
			"acquirer_id": acquirer,
			"acquired_id": acquired,
			"date":        date,
			"note":        note,
		})
	}

	for _, entry := range lineage(rec.Metadata, models.MetadataAcquisitions) {
		acquired, _ := entry["acquired_id"].(string)
		add(rec.CanonicalID, acquired, entry)
	}
	for _, entry := range lineage(rec.Metadata, models.MetadataAcquiredBy) {
		acquirer, _ := entry["acquirer_id"].(string)
		add(acquirer, rec.CanonicalID, entry)
	}

	slices.SortStableFunc(edges, func(a, b map[string]any) int {
		ka := a["acquirer_id"].(string) + "/" + a["acquired_id"].(string)
		kb := b["acquirer_id"].(string) + "/" + b["acquired_id"].(string)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})
	if edges == nil {
		edges = []map[string]any{}
	}
	return edges
}

func lineage(metadata map[string]any, key string) []map[string]any {
	list, _ := metadata[key].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if entry, ok := item.(map[string]any); ok {
			out = append(out, entry)
		}
	}
	return out
}
