// Package firestore implements store.Repository on Cloud Firestore, one
// collection per entity. Versioned writes run in a single-document
// transaction; nothing spans documents.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ce-fello/codeclash-service/src/internal/model"
	"github.com/ce-fello/codeclash-service/src/internal/store"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection        = "users"
	challengesCollection   = "challenges"
	teamsCollection        = "teams"
	applicationsCollection = "applications"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	client *firestore.Client
	log    *zap.Logger
}

func New(client *firestore.Client, logger *zap.Logger) *Store {
	return &Store{client: client, log: logger}
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(usersCollection).Limit(1).Documents(ctx).Next()
	if errors.Is(err, iterator.Done) {
		return nil
	}
	return err
}

func (s *Store) Close() error {
	return s.client.Close()
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *Store) get(ctx context.Context, collection, id string, v any) error {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if notFound(err) {
			return model.ErrNotFound
		}
		s.log.Error("firestore.get: failed", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		return err
	}
	return snap.DataTo(v)
}

// swap replaces the document when its stored version equals prev.
func (s *Store) swap(ctx context.Context, collection, id string, prev int64, doc any) error {
	return s.guarded(ctx, "swap", collection, id, prev, func(tx *firestore.Transaction, ref *firestore.DocumentRef) error {
		return tx.Set(ref, doc)
	})
}

// removeAt deletes the document when its stored version equals prev.
func (s *Store) removeAt(ctx context.Context, collection, id string, prev int64) error {
	return s.guarded(ctx, "removeAt", collection, id, prev, func(tx *firestore.Transaction, ref *firestore.DocumentRef) error {
		return tx.Delete(ref)
	})
}

// guarded runs write in a transaction after checking the stored version.
func (s *Store) guarded(ctx context.Context, op, collection, id string, prev int64,
	write func(*firestore.Transaction, *firestore.DocumentRef) error) error {
	ref := s.client.Collection(collection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if notFound(err) {
				return model.ErrNotFound
			}
			return err
		}
		v, err := snap.DataAt("version")
		if err != nil {
			return err
		}
		if stored, _ := v.(int64); stored != prev {
			return model.ErrConflict
		}
		return write(tx, ref)
	}, firestore.MaxAttempts(1))
	if err != nil && !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrConflict) {
		s.log.Error("firestore."+op+": failed", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
	}
	return err
}

func (s *Store) remove(ctx context.Context, collection, id string) error {
	ref := s.client.Collection(collection).Doc(id)
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if notFound(err) {
			return model.ErrNotFound
		}
		s.log.Error("firestore.remove: failed", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// collect drains the query, decoding each document with decode.
func collect[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()
	out := []T{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		v, err := decode(doc)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", doc.Ref.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, uid string) (model.User, error) {
	var u model.User
	if err := s.get(ctx, usersCollection, uid, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u.Version = 1
	if _, err := s.client.Collection(usersCollection).Doc(u.UID).Create(ctx, u); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return model.User{}, model.ErrConflict
		}
		s.log.Error("firestore.CreateUser: failed", zap.String("user", u.UID), zap.Error(err))
		return model.User{}, err
	}
	s.log.Info("firestore.CreateUser: success", zap.String("user", u.UID))
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	prev := u.Version
	u.Version++
	if err := s.swap(ctx, usersCollection, u.UID, prev, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *Store) ListTopUsers(ctx context.Context, limit int) ([]model.User, error) {
	q := s.client.Collection(usersCollection).OrderBy("platform.rating", firestore.Desc).Limit(limit)
	return collect(ctx, q, func(doc *firestore.DocumentSnapshot) (model.User, error) {
		var u model.User
		err := doc.DataTo(&u)
		return u, err
	})
}

func decodeChallenge(doc *firestore.DocumentSnapshot) (model.Challenge, error) {
	var c model.Challenge
	if err := doc.DataTo(&c); err != nil {
		return model.Challenge{}, err
	}
	c.ID = doc.Ref.ID
	c.Reindex()
	return c, nil
}

func (s *Store) CreateChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error) {
	c.Version = 1
	c.Reindex()
	ref := s.client.Collection(challengesCollection).NewDoc()
	if c.ID != "" {
		ref = s.client.Collection(challengesCollection).Doc(c.ID)
	}
	if _, err := ref.Create(ctx, c); err != nil {
		s.log.Error("firestore.CreateChallenge: failed", zap.Error(err))
		return model.Challenge{}, err
	}
	c.ID = ref.ID
	s.log.Info("firestore.CreateChallenge: success", zap.String("challenge", c.ID))
	return c, nil
}

func (s *Store) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	snap, err := s.client.Collection(challengesCollection).Doc(id).Get(ctx)
	if err != nil {
		if notFound(err) {
			return model.Challenge{}, model.ErrNotFound
		}
		s.log.Error("firestore.GetChallenge: failed", zap.String("challenge", id), zap.Error(err))
		return model.Challenge{}, err
	}
	return decodeChallenge(snap)
}

func (s *Store) UpdateChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error) {
	prev := c.Version
	c.Version++
	c.Reindex()
	if err := s.swap(ctx, challengesCollection, c.ID, prev, c); err != nil {
		return model.Challenge{}, err
	}
	return c, nil
}

func (s *Store) DeleteChallenge(ctx context.Context, id string) error {
	return s.remove(ctx, challengesCollection, id)
}

func (s *Store) ListChallenges(ctx context.Context, f model.ChallengeFilter) (model.ChallengePage, error) {
	col := s.client.Collection(challengesCollection)
	q := col.Query
	if f.Type != "" {
		q = q.Where("type", "==", string(f.Type))
	}
	if f.Difficulty != "" {
		q = q.Where("difficulty", "==", string(f.Difficulty))
	}
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	if f.CreatorUID != "" {
		q = q.Where("creator_uid", "==", f.CreatorUID)
	}
	if f.Privacy != "" {
		q = q.Where("privacy", "==", string(f.Privacy))
	}
	q = q.OrderBy("created_at", firestore.Desc)
	if f.Cursor != "" {
		last, err := col.Doc(f.Cursor).Get(ctx)
		if err != nil {
			if notFound(err) {
				return model.ChallengePage{Items: []model.Challenge{}}, nil
			}
			return model.ChallengePage{}, err
		}
		q = q.StartAfter(last)
	}
	size := f.PageSize()
	items, err := collect(ctx, q.Limit(size+1), decodeChallenge)
	if err != nil {
		s.log.Error("firestore.ListChallenges: failed", zap.Error(err))
		return model.ChallengePage{}, err
	}
	page := model.ChallengePage{Items: items}
	if len(items) > size {
		page.Items = items[:size]
		page.NextCursor = items[size-1].ID
	}
	return page, nil
}

func (s *Store) ListChallengesByParticipant(ctx context.Context, uid string) ([]model.Challenge, error) {
	q := s.client.Collection(challengesCollection).
		Where("participant_uids", "array-contains", uid).
		OrderBy("created_at", firestore.Desc)
	return collect(ctx, q, decodeChallenge)
}

func decodeTeam(doc *firestore.DocumentSnapshot) (model.Team, error) {
	var t model.Team
	if err := doc.DataTo(&t); err != nil {
		return model.Team{}, err
	}
	t.ID = doc.Ref.ID
	t.Reindex()
	return t, nil
}

func (s *Store) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	t.Version = 1
	t.Reindex()
	ref := s.client.Collection(teamsCollection).NewDoc()
	if t.ID != "" {
		ref = s.client.Collection(teamsCollection).Doc(t.ID)
	}
	if _, err := ref.Create(ctx, t); err != nil {
		s.log.Error("firestore.CreateTeam: failed", zap.Error(err))
		return model.Team{}, err
	}
	t.ID = ref.ID
	return t, nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (model.Team, error) {
	snap, err := s.client.Collection(teamsCollection).Doc(id).Get(ctx)
	if err != nil {
		if notFound(err) {
			return model.Team{}, model.ErrNotFound
		}
		return model.Team{}, err
	}
	return decodeTeam(snap)
}

func (s *Store) UpdateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	prev := t.Version
	t.Version++
	t.Reindex()
	if err := s.swap(ctx, teamsCollection, t.ID, prev, t); err != nil {
		return model.Team{}, err
	}
	return t, nil
}

func (s *Store) DeleteTeam(ctx context.Context, id string, version int64) error {
	return s.removeAt(ctx, teamsCollection, id, version)
}

func (s *Store) ListTeamsByChallenge(ctx context.Context, challengeID string) ([]model.Team, error) {
	q := s.client.Collection(teamsCollection).Where("challenge_id", "==", challengeID).OrderBy("created_at", firestore.Asc)
	return collect(ctx, q, decodeTeam)
}

func (s *Store) ListTeamsByMember(ctx context.Context, uid string) ([]model.Team, error) {
	q := s.client.Collection(teamsCollection).Where("member_uids", "array-contains", uid).OrderBy("created_at", firestore.Desc)
	return collect(ctx, q, decodeTeam)
}

func decodeApplication(doc *firestore.DocumentSnapshot) (model.Application, error) {
	var a model.Application
	if err := doc.DataTo(&a); err != nil {
		return model.Application{}, err
	}
	a.ID = doc.Ref.ID
	return a, nil
}

func (s *Store) CreateApplication(ctx context.Context, a model.Application) (model.Application, error) {
	a.Version = 1
	ref, _, err := s.client.Collection(applicationsCollection).Add(ctx, a)
	if err != nil {
		s.log.Error("firestore.CreateApplication: failed", zap.Error(err))
		return model.Application{}, err
	}
	a.ID = ref.ID
	return a, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (model.Application, error) {
	snap, err := s.client.Collection(applicationsCollection).Doc(id).Get(ctx)
	if err != nil {
		if notFound(err) {
			return model.Application{}, model.ErrNotFound
		}
		return model.Application{}, err
	}
	return decodeApplication(snap)
}

func (s *Store) UpdateApplication(ctx context.Context, a model.Application) (model.Application, error) {
	prev := a.Version
	a.Version++
	if err := s.swap(ctx, applicationsCollection, a.ID, prev, a); err != nil {
		return model.Application{}, err
	}
	return a, nil
}

func (s *Store) ListApplicationsByChallenge(ctx context.Context, challengeID string) ([]model.Application, error) {
	q := s.client.Collection(applicationsCollection).Where("challenge_id", "==", challengeID).OrderBy("created_at", firestore.Desc)
	return collect(ctx, q, decodeApplication)
}

func (s *Store) ListApplicationsByApplicant(ctx context.Context, uid string) ([]model.Application, error) {
	q := s.client.Collection(applicationsCollection).Where("applicant_uid", "==", uid).OrderBy("created_at", firestore.Desc)
	return collect(ctx, q, decodeApplication)
}

func (s *Store) FindApplication(ctx context.Context, challengeID, uid string) (model.Application, error) {
	q := s.client.Collection(applicationsCollection).
		Where("challenge_id", "==", challengeID).
		Where("applicant_uid", "==", uid).
		OrderBy("created_at", firestore.Asc).
		Limit(1)
	apps, err := collect(ctx, q, decodeApplication)
	if err != nil {
		return model.Application{}, err
	}
	if len(apps) == 0 {
		return model.Application{}, model.ErrNotFound
	}
	return apps[0], nil
}
