package listing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the collection owned by the listings service.
const CollectionName = "listings"

// The listings service stores prices as plain numbers in major units.
const minorPerMajor = 100

type mongoDocument struct {
	Price struct {
		BasePrice   mongoAmount `bson:"basePrice"`
		CleaningFee mongoAmount `bson:"cleaningFee"`
		ServiceFee  mongoAmount `bson:"serviceFee"`
	} `bson:"price"`
}

// mongoAmount is a major-unit BSON number held in minor units.
type mongoAmount int64

func (a *mongoAmount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}

	var major float64
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*a = 0
		return nil
	case bsontype.Double:
		major = raw.Double()
	case bsontype.Int32:
		major = float64(raw.Int32())
	case bsontype.Int64:
		major = float64(raw.Int64())
	case bsontype.Decimal128:
		f, err := strconv.ParseFloat(raw.Decimal128().String(), 64)
		if err != nil {
			return fmt.Errorf("decode decimal price: %w", err)
		}
		major = f
	default:
		return fmt.Errorf("price amount has unsupported BSON type %s", t)
	}

	if math.IsNaN(major) || math.IsInf(major, 0) || major < 0 {
		return fmt.Errorf("invalid price amount %v", major)
	}
	*a = mongoAmount(math.Round(major * minorPerMajor))
	return nil
}

type mongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository reads listing prices straight from the listings
// service's database.
func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection(CollectionName)}
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Listing, error) {
	// Listings created by the listings service use ObjectIDs, imported
	// ones may carry plain string ids.
	var key any = id
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		key = oid
	}

	opts := options.FindOne().SetProjection(bson.M{"price": 1})

	var doc mongoDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": key}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find listing failed: %w", err)
	}

	return &Listing{ID: id, Price: Price{
		BasePrice:   int64(doc.Price.BasePrice),
		CleaningFee: int64(doc.Price.CleaningFee),
		ServiceFee:  int64(doc.Price.ServiceFee),
	}}, nil
}

// Connect opens a client and returns the named database.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRetryWrites(true))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client.Database(database), nil
}
