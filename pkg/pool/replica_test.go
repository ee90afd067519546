package pool_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/pg-sharding/readreplicas/pkg/conn"
	mockconn "github.com/pg-sharding/readreplicas/pkg/mock/conn"
	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/pg-sharding/readreplicas/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type urlConn struct {
	conn.Connection
	url  string
	opts conn.ClientOptions
}

func TestReplicaPoolConfigurationErrors(t *testing.T) {
	factory := func(url string, opts conn.ClientOptions) (conn.Connection, error) {
		return &urlConn{url: url}, nil
	}

	for _, tt := range []struct {
		name string
		opts pool.PoolOpts
		msg  string
	}{
		{
			name: "both",
			opts: pool.PoolOpts{URLs: []string{"postgres://r1"}, Replicas: []conn.Connection{&urlConn{}}, Factory: factory},
			msg:  "only one of 'url' or 'replicas' may be specified",
		},
		{
			name: "neither",
			opts: pool.PoolOpts{Factory: factory},
			msg:  "either 'url' or 'replicas' must be specified",
		},
		{
			name: "empty urls",
			opts: pool.PoolOpts{URLs: []string{}, Factory: factory},
			msg:  "at least one replica URL must be specified",
		},
		{
			name: "empty replicas",
			opts: pool.PoolOpts{Replicas: []conn.Connection{}},
			msg:  "at least one replica must be specified",
		},
		{
			name: "no factory",
			opts: pool.PoolOpts{URLs: []string{"postgres://r1"}},
			msg:  "replica URLs require a connection factory",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)

			p, err := pool.NewReplicaPool(tt.opts)
			assert.Nil(p)
			assert.ErrorIs(err, spqrerror.ErrConfiguration)

			var rerr *spqrerror.SpqrError
			require.True(t, errors.As(err, &rerr))
			assert.Equal(tt.msg, rerr.Message())
		})
	}
}

func TestReplicaPoolFactoryAndConfigure(t *testing.T) {
	assert := assert.New(t)

	shared := conn.ClientOptions{Datasource: "db", ApplicationName: "app"}
	var configured []string

	p, err := pool.NewReplicaPool(pool.PoolOpts{
		URLs: []string{"postgres://r1", "postgres://r2"},
		Factory: func(url string, opts conn.ClientOptions) (conn.Connection, error) {
			return &urlConn{url: url, opts: opts}, nil
		},
		ClientOptions: shared,
		Configure: func(c conn.Connection) conn.Connection {
			configured = append(configured, c.(*urlConn).url)
			return c
		},
	})
	assert.NoError(err)
	assert.Equal(2, p.Size())
	assert.Equal([]string{"postgres://r1", "postgres://r2"}, configured)

	for i, c := range p.Replicas() {
		uc := c.(*urlConn)
		assert.Equal(fmt.Sprintf("postgres://r%d", i+1), uc.url)
		assert.Equal(shared, uc.opts)
	}
}

func TestReplicaPoolFactoryError(t *testing.T) {
	assert := assert.New(t)

	p, err := pool.NewReplicaPool(pool.PoolOpts{
		URLs: []string{"postgres://r1", "::bad"},
		Factory: func(url string, opts conn.ClientOptions) (conn.Connection, error) {
			if url == "::bad" {
				return nil, errors.New("cannot parse url")
			}
			return &urlConn{url: url}, nil
		},
	})
	assert.Nil(p)
	assert.ErrorIs(err, spqrerror.ErrConfiguration)
	assert.Contains(err.Error(), "replica 1")
}

func TestReplicaPoolConnectDisconnectAll(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)

	r1 := mockconn.NewMockConnection(ctrl)
	r2 := mockconn.NewMockConnection(ctrl)
	r3 := mockconn.NewMockConnection(ctrl)

	for _, r := range []*mockconn.MockConnection{r1, r2, r3} {
		r.EXPECT().Connect(gomock.Any()).Return(nil).Times(1)
		r.EXPECT().Disconnect(gomock.Any()).Return(nil).Times(1)
	}

	p, err := pool.NewReplicaPool(pool.PoolOpts{Replicas: []conn.Connection{r1, r2, r3}, Parallelism: 2})
	assert.NoError(err)

	assert.NoError(p.ConnectAll(context.TODO()))
	assert.NoError(p.DisconnectAll(context.TODO()))
}

func TestReplicaPoolFanOutReportsEveryFailure(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)

	r1 := mockconn.NewMockConnection(ctrl)
	r2 := mockconn.NewMockConnection(ctrl)
	r3 := mockconn.NewMockConnection(ctrl)

	err1 := errors.New("r1 refused")
	err3 := errors.New("r3 refused")

	r1.EXPECT().Disconnect(gomock.Any()).Return(err1)
	r2.EXPECT().Disconnect(gomock.Any()).Return(nil)
	r3.EXPECT().Disconnect(gomock.Any()).Return(err3)

	p, err := pool.NewReplicaPool(pool.PoolOpts{Replicas: []conn.Connection{r1, r2, r3}})
	assert.NoError(err)

	err = p.DisconnectAll(context.TODO())
	assert.ErrorIs(err, err1)
	assert.ErrorIs(err, err3)
	assert.ErrorIs(err, spqrerror.ErrExecution)
}

func TestReplicaPoolPickIsUniform(t *testing.T) {
	assert := assert.New(t)

	const n = 4
	const picks = 40000

	replicas := make([]conn.Connection, n)
	index := map[conn.Connection]int{}
	for i := range replicas {
		c := &urlConn{url: fmt.Sprintf("r%d", i)}
		replicas[i] = c
		index[c] = i
	}

	p, err := pool.NewReplicaPool(pool.PoolOpts{Replicas: replicas})
	assert.NoError(err)

	counts := make([]int, n)
	for i := 0; i < picks; i++ {
		counts[index[p.PickReplica()]]++
	}

	expected := picks / n
	for i, c := range counts {
		assert.InDelta(expected, c, float64(expected)*0.1, "replica %d picked %d times", i, c)
	}
}

func TestReplicaPoolPickConcurrent(t *testing.T) {
	assert := assert.New(t)

	r := &urlConn{url: "only"}
	p, err := pool.NewReplicaPool(pool.PoolOpts{Replicas: []conn.Connection{r}})
	assert.NoError(err)

	var wg sync.WaitGroup
	for k := 0; k < 50; k++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				assert.Same(r, p.PickReplica())
			}
		}()
	}
	wg.Wait()
}
