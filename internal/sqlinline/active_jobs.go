package sqlinline

// Single-flight markers. The partial unique index
// active_jobs_one_running_per_user rejects a second running row per user;
// callers translate that violation into a concurrency conflict.

const QInsertActiveJob = `--sql 3f1c2a7e-5b8d-4e0a-9c61-2d7f4b9e8a10
insert into active_jobs (id, user_id, job_type, status, started_at)
values ($1::uuid, $2::text, $3::text, 'running', $4::timestamptz);
`

const QFinishActiveJob = `--sql 9a4e6b21-0c3d-4f7a-8e15-6b2c9d0f3a47
update active_jobs
set status = $2::text,
    completed_at = $3::timestamptz
where id = $1::uuid
  and status = 'running';
`

const QDeleteActiveJob = `--sql c2d8f0a4-7e19-4b36-a5c0-81f3e6d2b954
delete from active_jobs
where id = $1::uuid
  and status <> 'running';
`

const QDeleteStaleActiveJobsForUser = `--sql 5e7b9c13-2a4f-4d68-b0e7-f91a3c5d7e26
delete from active_jobs
where user_id = $1::text
  and (status <> 'running' or started_at < $2::timestamptz);
`

const QDeleteStaleActiveJobs = `--sql 71a0d3f5-c8e2-4b19-9d46-0e5f7a2b8c63
delete from active_jobs
where status <> 'running'
   or started_at < $1::timestamptz;
`

const QSelectRunningActiveJob = `--sql e4f6a8b0-1d3c-4e5f-8a7b-9c0d2e4f6a81
select id::text, user_id, job_type, status, started_at, completed_at
from active_jobs
where user_id = $1::text
  and status = 'running'
limit 1;
`
