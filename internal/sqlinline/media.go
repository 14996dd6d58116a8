package sqlinline

const QInsertGeneratedMedia = `--sql 8b2d4f60-a1c3-4e5d-9f7b-0a2c4e6f8b13
insert into generated_media (
    id, user_id, job_id, kind, url, storage_key, prompt, model_id,
    aspect_ratio_or_duration, degraded, created_at
)
values (
    $1::uuid, $2::text, $3::uuid, $4::text, $5::text, $6::text, $7::text, $8::text,
    $9::text, $10::boolean, $11::timestamptz
);
`

const QListGeneratedMedia = `--sql 0d3f5a7c-9e1b-4c2d-8f4a-6b8d0f2a4c95
select id::text, user_id, coalesce(job_id::text, ''), kind, url, storage_key, prompt, model_id,
       aspect_ratio_or_duration, degraded, created_at
from generated_media
where user_id = $1::text
  and ($2::text = '' or kind = $2::text)
order by created_at desc
limit $3::int;
`

const QSelectGeneratedMedia = `--sql 6c8e0a2b-4d6f-4a1c-b3e5-7f9a1c3e5b07
select id::text, user_id, coalesce(job_id::text, ''), kind, url, storage_key, prompt, model_id,
       aspect_ratio_or_duration, degraded, created_at
from generated_media
where id = $1::uuid
  and user_id = $2::text;
`

const QDeleteGeneratedMedia = `--sql a7c9e1f3-5b7d-4f0a-8c2e-4a6c8e0b2d39
delete from generated_media
where id = $1::uuid
  and user_id = $2::text;
`
