package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/config"
	"github.com/nguyentrananhhoang13122005/ICTU-OpenAgri-2/internal/geo"
)

const queryTimeout = 8 * time.Second

// Mongo bundles the MongoDB-backed stores.
type Mongo struct {
	client       *mongo.Client
	observations *mongo.Collection
	farms        *mongo.Collection
}

// Connect opens the MongoDB connection and prepares indexes. The index on
// (farmId, metricType, acquisitionDate) is deliberately non-unique: the
// at-most-one-record invariant is enforced by the exists-then-save discipline
// in the pipeline, and the index only keeps existence checks and history
// queries cheap.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect failed: %w", err)
	}
	db := client.Database(cfg.Database)

	m := &Mongo{
		client:       client,
		observations: db.Collection("satellite_observations"),
		farms:        db.Collection("farms"),
	}

	if _, err := m.observations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "farmId", Value: 1},
			{Key: "metricType", Value: 1},
			{Key: "acquisitionDate", Value: 1},
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to create observation index: %w", err)
	}

	return m, nil
}

// Close disconnects from MongoDB.
func (m *Mongo) Close(ctx context.Context) { _ = m.client.Disconnect(ctx) }

// Observations returns the observation cache backed by MongoDB.
func (m *Mongo) Observations() ObservationStore { return &mongoObservations{col: m.observations} }

// Farms returns the read-only farm store backed by MongoDB.
func (m *Mongo) Farms() FarmStore { return &mongoFarms{col: m.farms} }

type mongoObservations struct {
	col *mongo.Collection
}

func (s *mongoObservations) Exists(ctx context.Context, farmID string, metric Metric, date time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	n, err := s.col.CountDocuments(ctx, bson.M{
		"farmId":          farmID,
		"metricType":      metric,
		"acquisitionDate": DateOnlyUTC(date),
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("observation existence check failed: %w", err)
	}
	return n > 0, nil
}

func (s *mongoObservations) Save(ctx context.Context, rec ObservationRecord) (ObservationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rec.AcquisitionDate = DateOnlyUTC(rec.AcquisitionDate)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.ID = ""

	res, err := s.col.InsertOne(ctx, &rec)
	if err != nil {
		return ObservationRecord{}, fmt.Errorf("observation insert failed: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		rec.ID = oid.Hex()
	}
	return rec, nil
}

func (s *mongoObservations) Query(ctx context.Context, farmID string, metric Metric, from, to time.Time) ([]ObservationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cur, err := s.col.Find(ctx, bson.M{
		"farmId":     farmID,
		"metricType": metric,
		"acquisitionDate": bson.M{
			"$gte": DateOnlyUTC(from),
			"$lte": DateOnlyUTC(to),
		},
	}, options.Find().SetSort(bson.D{{Key: "acquisitionDate", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("observation query failed: %w", err)
	}
	defer cur.Close(ctx)

	// _id is an ObjectID on the wire; decode it separately from the record.
	var raw []struct {
		ID              primitive.ObjectID `bson:"_id"`
		FarmID          string             `bson:"farmId"`
		AcquisitionDate time.Time          `bson:"acquisitionDate"`
		Metric          Metric             `bson:"metricType"`
		Platform        string             `bson:"platform"`
		MeanValue       float64            `bson:"meanValue"`
		MinValue        float64            `bson:"minValue"`
		MaxValue        float64            `bson:"maxValue"`
		CloudCover      *float64           `bson:"cloudCover"`
		CreatedAt       time.Time          `bson:"createdAt"`
	}
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("observation decode failed: %w", err)
	}

	out := make([]ObservationRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, ObservationRecord{
			ID:              r.ID.Hex(),
			FarmID:          r.FarmID,
			AcquisitionDate: r.AcquisitionDate,
			Metric:          r.Metric,
			Platform:        r.Platform,
			MeanValue:       r.MeanValue,
			MinValue:        r.MinValue,
			MaxValue:        r.MaxValue,
			CloudCover:      r.CloudCover,
			CreatedAt:       r.CreatedAt,
		})
	}
	return out, nil
}

type mongoFarms struct {
	col *mongo.Collection
}

func (s *mongoFarms) All(ctx context.Context) ([]Farm, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cur, err := s.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("farm listing failed: %w", err)
	}
	defer cur.Close(ctx)

	var raw []struct {
		ID       primitive.ObjectID `bson:"_id"`
		Name     string             `bson:"name"`
		Boundary []struct {
			Lat float64 `bson:"lat"`
			Lng float64 `bson:"lng"`
		} `bson:"coordinates"`
	}
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("farm decode failed: %w", err)
	}

	farms := make([]Farm, 0, len(raw))
	for _, r := range raw {
		f := Farm{ID: r.ID.Hex(), Name: r.Name}
		for _, v := range r.Boundary {
			f.Boundary = append(f.Boundary, geo.Vertex{Lat: v.Lat, Lng: v.Lng})
		}
		farms = append(farms, f)
	}
	return farms, nil
}
