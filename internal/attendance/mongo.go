package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the attendance collection in the portal database.
const CollectionName = "attendance"

type mongoDoc struct {
	Record      `bson:",inline"`
	StationInfo string `bson:"stationInfo,omitempty"`
}

// MongoStore persists attendance records in the portal's MongoDB database.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore uses the attendance collection of database db.
func NewMongoStore(client *mongo.Client, db string) *MongoStore {
	return &MongoStore{client: client, coll: client.Database(db).Collection(CollectionName)}
}

// indexModels mirrors the Postgres schema; slot_unique closes the check-then-insert race.
func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "studentId", Value: 1}, {Key: "appointmentSlot", Value: 1}, {Key: "dateKey", Value: 1}},
			Options: options.Index().SetName("slot_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "concurrentScanId", Value: 1}},
			Options: options.Index().SetName("concurrent_scan_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "studentId", Value: 1}, {Key: "appointmentSlot", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("student_slot_date"),
		},
		{
			Keys:    bson.D{{Key: "qrStudentId", Value: 1}, {Key: "appointmentSlot", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("qr_student_slot_date").SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "supervisorId", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("supervisor_date"),
		},
		{
			Keys:    bson.D{{Key: "date", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("date_status"),
		},
	}
}

// EnsureIndexes creates the attendance indexes; existing identical indexes are left alone.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := m.coll.Indexes().CreateMany(ctx, indexModels()); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

func slotFilter(l Lookup) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"studentId": l.StudentID},
			bson.M{"qrStudentId": l.StudentID},
		},
		"appointmentSlot": string(l.Slot),
		"date":            bson.M{"$gte": l.Start, "$lte": l.End},
	}
}

// FindForSlot implements Store.
func (m *MongoStore) FindForSlot(ctx context.Context, l Lookup) (*Record, error) {
	var doc mongoDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "checkInTime", Value: 1}})
	if err := m.coll.FindOne(ctx, slotFilter(l), opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	rec := doc.record()
	return &rec, nil
}

// Insert implements Store.
func (m *MongoStore) Insert(ctx context.Context, rec Record) error {
	doc := mongoDoc{Record: rec, StationInfo: string(rec.StationInfo)}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert attendance %s: %w", rec.ID, ErrDuplicateKey)
		}
		return err
	}
	return nil
}

func listFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.SupervisorID != "" {
		filter["supervisorId"] = f.SupervisorID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	date := bson.M{}
	if !f.Start.IsZero() {
		date["$gte"] = f.Start
	}
	if !f.End.IsZero() {
		date["$lte"] = f.End
	}
	if len(date) > 0 {
		filter["date"] = date
	}
	return filter
}

// List implements Store.
func (m *MongoStore) List(ctx context.Context, f Filter) ([]Record, error) {
	f = f.normalized()
	opts := options.Find().
		SetSort(bson.D{{Key: "checkInTime", Value: -1}}).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(f.Limit))
	cur, err := m.coll.Find(ctx, listFilter(f), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []mongoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}

// CountBySlot implements Store.
func (m *MongoStore) CountBySlot(ctx context.Context, start, end time.Time) ([]SlotCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"date":   bson.M{"$gte": start, "$lte": end},
			"status": StatusPresent,
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$appointmentSlot",
			"count": bson.M{"$sum": 1},
		}}},
	}
	cur, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Slot  string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := map[Slot]int64{}
	for _, r := range rows {
		counts[Slot(r.Slot)] = r.Count
	}
	return slotCounts(counts), nil
}

// Ping implements Store.
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close implements Store.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (d mongoDoc) record() Record {
	rec := d.Record
	if d.StationInfo != "" {
		rec.StationInfo = []byte(d.StationInfo)
	}
	return rec
}
