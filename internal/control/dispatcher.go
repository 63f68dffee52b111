package control

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"sfuworker/internal/rtpcore/params"
	"sfuworker/internal/rtpcore/profile"
	"sfuworker/internal/sfu"
)

// entityObserver is what a newly created Producer/Consumer registers
// as its callback target. The Router itself satisfies it; metrics.Wrap
// decorates the Router with collector updates without this package
// needing to know that happened.
type entityObserver interface {
	sfu.ProducerObserver
	sfu.ConsumerObserver
}

// Dispatcher routes Requests onto a Router and its Producers/Consumers.
// Notifications for the events the Router's own callbacks surface
// (spec §6's emitted events) flow through Router.SetNotifier directly,
// not through this type.
type Dispatcher struct {
	router   *sfu.Router
	observer entityObserver

	// transports holds the Transport each about-to-be-created Producer or
	// Consumer will use; the host process registers these out of band
	// (ICE/DTLS/SRTP establishment is out of this core's scope, spec §1)
	// before issuing the corresponding router.createProducer/createConsumer
	// request.
	transports map[string]sfu.Transport

	// producerOpts is applied to every Producer this Dispatcher creates,
	// carrying the host process's configured NACK/PLI timing.
	producerOpts []sfu.ProducerOption

	log zerolog.Logger
}

// NewDispatcher builds a Dispatcher bound to router. observer is
// registered against every Producer/Consumer this Dispatcher creates;
// pass router itself unless the caller wraps it (e.g. metrics.Wrap).
// producerOpts is forwarded to sfu.NewProducer for every Producer this
// Dispatcher creates.
func NewDispatcher(router *sfu.Router, observer entityObserver, log zerolog.Logger, producerOpts ...sfu.ProducerOption) *Dispatcher {
	return &Dispatcher{
		router:       router,
		observer:     observer,
		transports:   make(map[string]sfu.Transport),
		producerOpts: producerOpts,
		log:          log.With().Str("component", "dispatcher").Logger(),
	}
}

// RegisterTransport binds id (a producerId or consumerId named in a
// subsequent create request) to the Transport that entity should use.
func (d *Dispatcher) RegisterTransport(id string, t sfu.Transport) {
	d.transports[id] = t
}

type createProducerData struct {
	ProducerID string             `json:"producerId"`
	Kind       string             `json:"kind"`
	RtpParams  params.RtpParameters `json:"rtpParameters"`
}

type createConsumerData struct {
	ConsumerID string             `json:"consumerId"`
	ProducerID string             `json:"producerId"`
	Kind       string             `json:"kind"`
	RtpParams  params.RtpParameters `json:"rtpParameters"`
}

type setPreferredProfileData struct {
	Profile string `json:"profile"`
}

// Dispatch handles one Request and returns the Response to frame back.
func (d *Dispatcher) Dispatch(req Request) Response {
	switch req.Method {
	case MethodRouterClose:
		return d.routerClose(req)
	case MethodRouterDump:
		return Accept(req.ID, d.router.Dump())
	case MethodRouterCreateProducer:
		return d.createProducer(req)
	case MethodRouterCreateConsumer:
		return d.createConsumer(req)
	case MethodProducerClose:
		return d.withProducer(req, func(p *sfu.Producer) Response {
			p.Close()
			return Accept(req.ID, nil)
		})
	case MethodProducerPause:
		return d.withProducer(req, func(p *sfu.Producer) Response {
			p.Pause()
			return Accept(req.ID, nil)
		})
	case MethodProducerResume:
		return d.withProducer(req, func(p *sfu.Producer) Response {
			p.Resume()
			return Accept(req.ID, nil)
		})
	case MethodProducerDump:
		return d.withProducer(req, func(p *sfu.Producer) Response {
			return Accept(req.ID, p.Dump())
		})
	case MethodConsumerClose:
		return d.withConsumer(req, func(c *sfu.Consumer) Response {
			c.Close()
			return Accept(req.ID, nil)
		})
	case MethodConsumerPause:
		return d.withConsumer(req, func(c *sfu.Consumer) Response {
			c.Pause()
			return Accept(req.ID, nil)
		})
	case MethodConsumerResume:
		return d.withConsumer(req, func(c *sfu.Consumer) Response {
			c.Resume(time.Now())
			return Accept(req.ID, nil)
		})
	case MethodConsumerSetPreferred:
		return d.setPreferredProfile(req)
	case MethodConsumerRequestFullFrame:
		return d.requestFullFrame(req)
	case MethodConsumerDump:
		return d.withConsumer(req, func(c *sfu.Consumer) Response {
			return Accept(req.ID, c.Dump())
		})
	default:
		return Reject(req.ID, "unknown method")
	}
}

func (d *Dispatcher) routerClose(req Request) Response {
	for _, id := range d.consumerIDs() {
		if c, ok := d.router.Consumer(id); ok {
			c.Close()
		}
	}
	return Accept(req.ID, nil)
}

func (d *Dispatcher) consumerIDs() []string {
	dump := d.router.Dump()
	consumers, _ := dump["consumers"].([]map[string]interface{})
	ids := make([]string, 0, len(consumers))
	for _, c := range consumers {
		if id, ok := c["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (d *Dispatcher) withProducer(req Request, fn func(*sfu.Producer) Response) Response {
	p, ok := d.router.Producer(req.Internal.ProducerID)
	if !ok {
		return Reject(req.ID, "unknown producer")
	}
	return fn(p)
}

func (d *Dispatcher) withConsumer(req Request, fn func(*sfu.Consumer) Response) Response {
	c, ok := d.router.Consumer(req.Internal.ConsumerID)
	if !ok {
		return Reject(req.ID, "unknown consumer")
	}
	return fn(c)
}

func (d *Dispatcher) createProducer(req Request) Response {
	var data createProducerData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return Reject(req.ID, "malformed createProducer data")
	}
	transport, ok := d.transports[data.ProducerID]
	if !ok {
		return Reject(req.ID, "no transport registered for producerId")
	}
	p := sfu.NewProducer(data.ProducerID, kindFromString(data.Kind), data.RtpParams, transport, d.observer, d.log, d.producerOpts...)
	d.router.AddProducer(p)
	return Accept(req.ID, nil)
}

func (d *Dispatcher) createConsumer(req Request) Response {
	var data createConsumerData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return Reject(req.ID, "malformed createConsumer data")
	}
	transport, ok := d.transports[data.ConsumerID]
	if !ok {
		return Reject(req.ID, "no transport registered for consumerId")
	}
	if _, ok := d.router.Producer(data.ProducerID); !ok {
		return Reject(req.ID, "unknown producer")
	}

	c := sfu.NewConsumer(data.ConsumerID, data.ProducerID, kindFromString(data.Kind), transport, d.observer, d.log)
	if err := c.Enable(data.RtpParams); err != nil {
		return Reject(req.ID, err.Error())
	}
	if !d.router.AddConsumer(c) {
		return Reject(req.ID, "unknown producer")
	}
	if p, ok := d.router.Producer(data.ProducerID); ok {
		p.AddListener(c.ID)
	}
	return Accept(req.ID, nil)
}

func (d *Dispatcher) setPreferredProfile(req Request) Response {
	var data setPreferredProfileData
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return Reject(req.ID, "malformed setPreferredProfile data")
	}
	prof, ok := profile.Parse(data.Profile)
	if !ok {
		return Reject(req.ID, "unknown profile")
	}
	return d.withConsumer(req, func(c *sfu.Consumer) Response {
		c.SetPreferredProfile(prof, time.Now())
		return Accept(req.ID, nil)
	})
}

func (d *Dispatcher) requestFullFrame(req Request) Response {
	return d.withConsumer(req, func(c *sfu.Consumer) Response {
		if p, ok := d.router.Producer(c.ProducerID); ok {
			p.RequestKeyFrame(c.EffectiveProfile(), time.Now())
		}
		return Accept(req.ID, nil)
	})
}

func kindFromString(s string) profile.Kind {
	switch s {
	case "audio":
		return profile.Audio
	case "depth":
		return profile.Depth
	default:
		return profile.Video
	}
}
